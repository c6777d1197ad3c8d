// Package nodehandler implements the per-NodeKind handler framework:
// ingest, ai/text transforms, and external actions. Every handler has the
// same shape (Task in, Result out) and is dispatched through a closed
// table keyed on domain.NodeKind (§9); a kind missing from the table fails
// at dispatch time, not at compile time.
package nodehandler

import (
	"context"
	"fmt"

	"github.com/lyzr/dagrunner/internal/aiprovider"
	"github.com/lyzr/dagrunner/internal/actionprovider"
	"github.com/lyzr/dagrunner/internal/domain"
)

// Task is the input every handler receives: the node's own config, plus
// its resolved inputs (the Run's declared inputs for a frontier node, or
// the Coordinator's predecessor-output merge otherwise).
type Task struct {
	RunID  string
	NodeID string
	Kind   domain.NodeKind
	Config map[string]interface{}
	Inputs map[string]interface{}
}

// Result is what a handler produces on success: the node's outputs (the
// only thing downstream nodes may read) and whether a degraded fallback
// path was used.
type Result struct {
	Outputs      map[string]interface{}
	FallbackUsed bool
}

// HandlerFunc implements one NodeKind's side effect.
type HandlerFunc func(ctx context.Context, deps *Dependencies, task Task) (Result, error)

// DocumentStore is the slice of the document repository a handler needs:
// write a freshly ingested Document. Uploaded-file lookups for ingest.pdf
// go through UploadedFileStore.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
}

// UploadedFileStore is the slice of the uploaded-file repository ingest.pdf
// needs.
type UploadedFileStore interface {
	GetByID(ctx context.Context, fileID string) (*domain.UploadedFile, error)
}

// Dependencies bundles every collaborator a handler may call out to.
// Constructed once in cmd/worker and shared by every handler invocation.
type Dependencies struct {
	Documents     DocumentStore
	UploadedFiles UploadedFileStore
	AI            aiprovider.Provider
	Slack         actionprovider.SlackProvider
	Sheets        actionprovider.SheetsProvider
	Email         actionprovider.EmailProvider
	Notion        actionprovider.NotionProvider
	Twilio        actionprovider.TwilioProvider
}

// Dispatcher routes a Task to its handler by NodeKind.
type Dispatcher struct {
	deps     *Dependencies
	handlers map[domain.NodeKind]HandlerFunc
}

// NewDispatcher builds a Dispatcher with every known NodeKind wired to its
// handler.
func NewDispatcher(deps *Dependencies) *Dispatcher {
	return &Dispatcher{
		deps: deps,
		handlers: map[domain.NodeKind]HandlerFunc{
			domain.NodeIngestPDF:     handleIngestPDF,
			domain.NodeIngestURL:     handleIngestURL,
			domain.NodeIngestWebhook: handleIngestWebhook,
			domain.NodeAIRagQA:       handleRagQA,
			domain.NodeAISummarize:   handleSummarize,
			domain.NodeAIClassify:    handleClassify,
			domain.NodeTextTransform: handleTextTransform,
			domain.NodeActSlack:      handleActSlack,
			domain.NodeActSheets:     handleActSheets,
			domain.NodeActEmail:      handleActEmail,
			domain.NodeActNotion:     handleActNotion,
			domain.NodeActTwilio:     handleActTwilio,
		},
	}
}

// Dispatch runs task's handler, recovering a handler panic at this
// boundary (§7) and turning it into an ordinary error. Worker.HandleTask
// treats that error like any other handler failure: the node is reported
// failed and the message is acked, so a panicking or failing handler is
// not redelivered by the broker.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("nodehandler: panic in %s handler: %v", task.Kind, r)
		}
	}()

	h, ok := d.handlers[task.Kind]
	if !ok {
		return Result{}, fmt.Errorf("nodehandler: no handler registered for kind %q", task.Kind)
	}
	return h(ctx, d.deps, task)
}

// firstNonEmpty returns the first non-empty string value found in inputs
// for the given keys, used by handlers whose contract accepts several
// aliases for their primary text input (e.g. content/text/summary).
func firstNonEmpty(inputs map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := inputs[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func configString(config map[string]interface{}, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
