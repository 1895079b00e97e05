package ocr

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// TextractProvider backs Provider with AWS Textract's async document-text
// detection API, the natural extension of the aws-sdk-go-v2 family the Blob
// Store already depends on (§4.2 external OCR provider).
type TextractProvider struct {
	client *textract.Client
	bucket string
}

// NewTextractProvider wraps an already-configured Textract client, scoped to
// the S3 bucket the document bytes were uploaded to (Textract's async jobs
// read source documents from S3, not from an inline payload).
func NewTextractProvider(client *textract.Client, bucket string) *TextractProvider {
	return &TextractProvider{client: client, bucket: bucket}
}

// Submit starts an async text-detection job against the object at blobKey,
// which must already be resident in the shared bucket (OA's caller uploads
// it via BS before calling Submit). mimeType is accepted to satisfy the
// Provider interface but Textract infers format from the object itself.
func (p *TextractProvider) Submit(ctx context.Context, blobKey string, mimeType string) (JobHandle, error) {
	out, err := p.client.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(p.bucket),
				Name:   aws.String(blobKey),
			},
		},
	})
	if err != nil {
		return JobHandle{}, fmt.Errorf("start textract job: %w", err)
	}
	return JobHandle{ProviderJobID: aws.ToString(out.JobId)}, nil
}

// Poll fetches the job's current status, paging through every result block
// on completion (Textract paginates GetDocumentTextDetection by NextToken).
func (p *TextractProvider) Poll(ctx context.Context, job JobHandle) (PollResult, error) {
	var (
		blocks   []Block
		pages    int
		token    *string
		jobStatus types.JobStatus
	)

	for {
		out, err := p.client.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(job.ProviderJobID),
			NextToken: token,
		})
		if err != nil {
			return PollResult{}, fmt.Errorf("get textract job %s: %w", job.ProviderJobID, err)
		}

		jobStatus = out.JobStatus
		if out.DocumentMetadata != nil {
			pages = int(aws.ToInt32(out.DocumentMetadata.Pages))
		}

		switch jobStatus {
		case types.JobStatusInProgress:
			return PollResult{Status: PollInProgress}, nil
		case types.JobStatusFailed, types.JobStatusPartialSuccess:
			reason := aws.ToString(out.StatusMessage)
			if reason == "" {
				reason = "textract job reported status " + string(jobStatus)
			}
			return PollResult{Status: PollFailed, Reason: reason}, nil
		case types.JobStatusSucceeded:
			for _, b := range out.Blocks {
				if b.BlockType != types.BlockTypeLine {
					continue
				}
				blocks = append(blocks, Block{
					PageNumber: int(aws.ToInt32(b.Page)),
					Text:       aws.ToString(b.Text),
				})
			}
			if out.NextToken == nil {
				return PollResult{Status: PollCompleted, Pages: pages, Blocks: blocks}, nil
			}
			token = out.NextToken
		default:
			return PollResult{Status: PollInProgress}, nil
		}
	}
}

// Cancel is best-effort: Textract has no job-cancellation API, so this is a
// no-op that lets the job run to completion and age out of our own polling
// loop (§4.2 "cancel(JobHandle)" is satisfied by OA simply stopping polling).
func (p *TextractProvider) Cancel(ctx context.Context, job JobHandle) error {
	return nil
}
