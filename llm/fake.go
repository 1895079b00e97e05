package llm

import "context"

// FakeClient is a scriptable Client double for tests in downstream packages
// (extractor, relationship) that need to exercise their own logic without
// depending on this package's network-backed implementations.
type FakeClient struct {
	Mentions      []MentionCandidate
	Relationships []RelationshipCandidate
	Err           error
	Calls         int
}

func (f *FakeClient) ExtractEntities(ctx context.Context, chunkText string) ([]MentionCandidate, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Mentions, nil
}

func (f *FakeClient) ExtractRelationships(ctx context.Context, chunkText string, knownEntities []string) ([]RelationshipCandidate, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Relationships, nil
}
