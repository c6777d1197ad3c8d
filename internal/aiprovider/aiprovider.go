// Package aiprovider gives the ai.* node handlers a single seam for calling
// out to a language model. Real calls go through the Anthropic SDK; when no
// key is configured or a call errors, a deterministic fallback keeps the
// node producing a syntactically valid (if degraded) output rather than
// failing the run.
package aiprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Provider answers a single completion request. Handlers build the prompt;
// the provider is responsible only for the model round trip.
type Provider interface {
	// Complete returns the model's text response to prompt, or an error if
	// the call could not be made (network, auth, rate limit). Fallback is
	// true when the response was synthesized locally rather than returned
	// by a real model.
	Complete(ctx context.Context, prompt string) (text string, fallback bool, err error)
}

const defaultModel = "claude-3-5-haiku-20241022"

// anthropicProvider calls the real Anthropic Messages API, falling back to
// fallbackProvider's deterministic behavior on any error so an ai.* node
// never fails the run solely because the model call failed.
type anthropicProvider struct {
	client   anthropic.Client
	model    string
	fallback *fallbackProvider
}

// New returns the Provider the ai.* handlers should use. If apiKey is
// empty, every call goes straight to the deterministic fallback.
func New(apiKey string) Provider {
	fb := &fallbackProvider{}
	if apiKey == "" {
		return fb
	}
	return &anthropicProvider{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:    defaultModel,
		fallback: fb,
	}
}

func (p *anthropicProvider) Complete(ctx context.Context, prompt string) (string, bool, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		// Transient or configuration error: degrade rather than fail the
		// node (§4.2 AI fallback).
		text, _, fbErr := p.fallback.Complete(ctx, prompt)
		return text, true, errors.Join(fmt.Errorf("anthropic: %w", err), fbErr)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}
	if text == "" {
		return p.fallback.Complete(ctx, prompt)
	}
	return text, false, nil
}

// fallbackProvider produces a deterministic result derived only from the
// prompt, with no network call. It never errors: there is no weaker mode to
// fall back to.
type fallbackProvider struct{}

func (fallbackProvider) Complete(_ context.Context, prompt string) (string, bool, error) {
	return deterministicCompletion(prompt), true, nil
}

// deterministicCompletion derives a short, stable string from prompt so
// fallback output is reproducible across runs and test assertions. It is
// intentionally simple: a truncated echo, not a simulated model response.
func deterministicCompletion(prompt string) string {
	const maxLen = 200
	trimmed := prompt
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen]
	}
	return trimmed
}
