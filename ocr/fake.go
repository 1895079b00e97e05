package ocr

import "context"

// FakeProvider is a scriptable Provider double for Adapter tests.
type FakeProvider struct {
	SubmitErr   error
	SubmitJobID string
	PollResults []PollResult // consumed in order, one per Poll call; last entry repeats
	PollErr     error
	Cancelled   []JobHandle
}

func (f *FakeProvider) Submit(ctx context.Context, blobKey string, mimeType string) (JobHandle, error) {
	if f.SubmitErr != nil {
		return JobHandle{}, f.SubmitErr
	}
	return JobHandle{ProviderJobID: f.SubmitJobID}, nil
}

func (f *FakeProvider) Poll(ctx context.Context, job JobHandle) (PollResult, error) {
	if f.PollErr != nil {
		return PollResult{}, f.PollErr
	}
	if len(f.PollResults) == 0 {
		return PollResult{Status: PollInProgress}, nil
	}
	next := f.PollResults[0]
	if len(f.PollResults) > 1 {
		f.PollResults = f.PollResults[1:]
	}
	return next, nil
}

func (f *FakeProvider) Cancel(ctx context.Context, job JobHandle) error {
	f.Cancelled = append(f.Cancelled, job)
	return nil
}
