package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessellate-ai/helmsman/inference"
)

// ServiceSummarizer summarizes transcript segments through a model. It is
// the Summarizer implementation the teammate manager wires by default.
type ServiceSummarizer struct {
	svc   inference.Service
	model string
}

// NewServiceSummarizer creates a summarizer that sends segments to the
// given model.
func NewServiceSummarizer(svc inference.Service, model string) *ServiceSummarizer {
	return &ServiceSummarizer{svc: svc, model: model}
}

// Summarize sends the segment with the summary instruction and returns the
// model's summary text.
func (s *ServiceSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := s.svc.Complete(ctx, inference.Request{
		Messages: []inference.Message{
			inference.SystemMessage(SummaryPrompt),
			inference.UserMessage(transcript),
		},
		Config: inference.ModelConfig{Model: s.model},
	})
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("summarize transcript: model returned no text")
	}
	return summary, nil
}
