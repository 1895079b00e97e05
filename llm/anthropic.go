package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against the Anthropic Messages API,
// prompting for a strict JSON payload and parsing the single text block
// back into MentionCandidate/RelationshipCandidate structs.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// AnthropicConfig configures the Anthropic-backed Client.
type AnthropicConfig struct {
	APIKey string
	Model  anthropic.Model // defaults to Claude 3.5 Sonnet if empty
}

// NewAnthropicClient builds a Client backed by the Anthropic API.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaude3_5SonnetLatest
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
	}
}

const entityExtractionSystemPrompt = `You extract named entities from legal document text. Respond with ONLY a JSON array, no prose, of objects with fields: text, type (one of PERSON, ORG, LOC, DATE, MONEY, OTHER), confidence (0-1 float), start_offset, end_offset (character offsets into the given text).`

type rawMentionCandidate struct {
	Text        string  `json:"text"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
}

// ExtractEntities implements Client (§4.4 remote extraction path).
func (c *AnthropicClient) ExtractEntities(ctx context.Context, chunkText string) ([]MentionCandidate, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: entityExtractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(chunkText)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic extract entities: %w", err)
	}

	raw, err := responseText(msg)
	if err != nil {
		return nil, err
	}

	var candidates []rawMentionCandidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, fmt.Errorf("decode entity extraction response: %w", err)
	}

	out := make([]MentionCandidate, 0, len(candidates))
	for _, r := range candidates {
		out = append(out, MentionCandidate{
			Text: r.Text, Type: r.Type, Confidence: r.Confidence,
			StartOffset: r.StartOffset, EndOffset: r.EndOffset,
		})
	}
	return out, nil
}

const relationshipExtractionSystemPrompt = `You extract relationships between named entities in legal document text. You are given the text and a list of known entity names already found in it. Respond with ONLY a JSON array, no prose, of objects with fields: from_text, to_text (must match given entity names), type (a short upper-snake-case relation label), confidence (0-1 float), evidence (a short supporting quote from the text).`

type rawRelationshipCandidate struct {
	FromText   string  `json:"from_text"`
	ToText     string  `json:"to_text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// ExtractRelationships implements Client (§4.6 per-chunk relationship call).
func (c *AnthropicClient) ExtractRelationships(ctx context.Context, chunkText string, knownEntities []string) ([]RelationshipCandidate, error) {
	prompt := fmt.Sprintf("Known entities: %s\n\nText:\n%s", strings.Join(knownEntities, ", "), chunkText)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: relationshipExtractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic extract relationships: %w", err)
	}

	raw, err := responseText(msg)
	if err != nil {
		return nil, err
	}

	var candidates []rawRelationshipCandidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, fmt.Errorf("decode relationship extraction response: %w", err)
	}

	out := make([]RelationshipCandidate, 0, len(candidates))
	for _, r := range candidates {
		out = append(out, RelationshipCandidate{
			FromText: r.FromText, ToText: r.ToText, Type: r.Type,
			Confidence: r.Confidence, Evidence: r.Evidence,
		})
	}
	return out, nil
}

func responseText(msg *anthropic.Message) (string, error) {
	var sb strings.Builder
	for _, block := range msg.Content {
		if text := block.AsText(); text.Text != "" {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic response contained no text block")
	}
	return sb.String(), nil
}
