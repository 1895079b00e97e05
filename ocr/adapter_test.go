package ocr_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/joeott/legal-doc-processor-sub013/ocr"
	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

func newTestStore(t *testing.T) *statestore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return statestore.NewWithClient(client, "")
}

func TestAdapter_Submit_ClassifiesAndCachesJob(t *testing.T) {
	ss := newTestStore(t)
	blobs := &ocrFakeBlob{data: map[string][]byte{
		"doc.pdf": []byte("%PDF-1.4\n/Type /Page\n(scanned placeholder) Tj\n"),
	}}
	provider := &ocr.FakeProvider{SubmitJobID: "job-1"}
	adapter := ocr.New(provider, blobs, ss, 3)

	doc := types.Document{ID: uuid.New(), MimeType: "application/pdf"}
	job, err := adapter.Submit(context.Background(), doc, "doc.pdf")
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ProviderJobID)
	require.Equal(t, types.OcrJobInProgress, job.Status)
	require.True(t, job.Scanned)

	cached, err := ss.GetOcrJobHash(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, job.ID, cached.ID)
}

func TestAdapter_Submit_RejectsNonPDF(t *testing.T) {
	ss := newTestStore(t)
	blobs := &ocrFakeBlob{data: map[string][]byte{"doc.txt": []byte("not a pdf")}}
	adapter := ocr.New(&ocr.FakeProvider{}, blobs, ss, 3)

	_, err := adapter.Submit(context.Background(), types.Document{ID: uuid.New()}, "doc.txt")
	var se *pipelineerr.StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "not_a_pdf", se.Reason)
}

func TestAdapter_Poll_CompletedWritesOCRCache(t *testing.T) {
	ss := newTestStore(t)
	provider := &ocr.FakeProvider{
		PollResults: []ocr.PollResult{{
			Status: ocr.PollCompleted,
			Pages:  1,
			Blocks: []ocr.Block{{PageNumber: 1, Text: "hello"}, {PageNumber: 1, Text: "world"}},
		}},
	}
	adapter := ocr.New(provider, &ocrFakeBlob{}, ss, 3)

	docID := uuid.New()
	job := types.OcrJob{ProviderJobID: "job-2", DocumentID: docID}
	updated, text, err := adapter.Poll(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, types.OcrJobCompleted, updated.Status)
	require.Equal(t, "hello\nworld", text)

	cached, ok, err := ss.GetOCRCache(context.Background(), docID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello\nworld", cached)
}

func TestAdapter_Poll_ExhaustsRetriesIntoTimeout(t *testing.T) {
	ss := newTestStore(t)
	adapter := ocr.New(&ocr.FakeProvider{}, &ocrFakeBlob{}, ss, 3)

	job := types.OcrJob{ProviderJobID: "job-3", Attempts: ocr.MaxPollRetries}
	updated, _, err := adapter.Poll(context.Background(), job)
	var se *pipelineerr.StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "ocr_timeout", se.Reason)
	require.Equal(t, types.OcrJobFailed, updated.Status)
}

func TestAdapter_Poll_ProviderFailurePropagatesReason(t *testing.T) {
	ss := newTestStore(t)
	provider := &ocr.FakeProvider{
		PollResults: []ocr.PollResult{{Status: ocr.PollFailed, Reason: "unsupported format"}},
	}
	adapter := ocr.New(provider, &ocrFakeBlob{}, ss, 3)

	_, _, err := adapter.Poll(context.Background(), types.OcrJob{ProviderJobID: "job-4"})
	var se *pipelineerr.StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "ocr_provider_failed", se.Reason)
}

func TestAdapter_Poll_JoinsBlocksInAscendingPageOrder(t *testing.T) {
	ss := newTestStore(t)
	provider := &ocr.FakeProvider{
		PollResults: []ocr.PollResult{{
			Status: ocr.PollCompleted,
			Pages:  3,
			// Out of page order, as a paginated provider's NextToken results
			// can arrive (§4.2 pagination note).
			Blocks: []ocr.Block{
				{PageNumber: 2, Text: "page two"},
				{PageNumber: 1, Text: "page one"},
				{PageNumber: 3, Text: "page three"},
			},
		}},
	}
	adapter := ocr.New(provider, &ocrFakeBlob{}, ss, 3)

	_, text, err := adapter.Poll(context.Background(), types.OcrJob{ProviderJobID: "job-5"})
	require.NoError(t, err)
	require.Equal(t, "page one\npage two\npage three", text)
}

// ocrFakeBlob is a minimal BlobSource double local to this test file.
type ocrFakeBlob struct {
	data map[string][]byte
}

func (f *ocrFakeBlob) Get(ctx context.Context, key string) ([]byte, error) {
	return f.data[key], nil
}
