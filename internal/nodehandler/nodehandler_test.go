package nodehandler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/internal/broker"
	"github.com/lyzr/dagrunner/internal/domain"
)

type fakeDocumentStore struct {
	docs []*domain.Document
}

func (s *fakeDocumentStore) Create(_ context.Context, doc *domain.Document) error {
	s.docs = append(s.docs, doc)
	return nil
}

type fakeUploadedFileStore struct {
	files map[string]*domain.UploadedFile
}

func (s *fakeUploadedFileStore) GetByID(_ context.Context, fileID string) (*domain.UploadedFile, error) {
	f, ok := s.files[fileID]
	if !ok {
		return nil, errors.New("not found")
	}
	return f, nil
}

func testDeps() *Dependencies {
	return &Dependencies{
		Documents:     &fakeDocumentStore{},
		UploadedFiles: &fakeUploadedFileStore{files: map[string]*domain.UploadedFile{}},
	}
}

func TestDispatch_TextTransformUppercase(t *testing.T) {
	d := NewDispatcher(testDeps())
	result, err := d.Dispatch(context.Background(), Task{
		Kind:   domain.NodeTextTransform,
		Config: map[string]interface{}{"operation": "uppercase"},
		Inputs: map[string]interface{}{"content": "hello world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", result.Outputs["transformed_text"])
}

func TestDispatch_TextTransformUnknownOperationFails(t *testing.T) {
	d := NewDispatcher(testDeps())
	_, err := d.Dispatch(context.Background(), Task{
		Kind:   domain.NodeTextTransform,
		Config: map[string]interface{}{"operation": "rot13"},
		Inputs: map[string]interface{}{"content": "x"},
	})
	assert.ErrorContains(t, err, "unknown operation")
}

func TestDispatch_TextTransformNoContentFails(t *testing.T) {
	d := NewDispatcher(testDeps())
	_, err := d.Dispatch(context.Background(), Task{
		Kind:   domain.NodeTextTransform,
		Config: map[string]interface{}{"operation": "uppercase"},
		Inputs: map[string]interface{}{},
	})
	assert.ErrorContains(t, err, "no content")
}

func TestDispatch_IngestWebhookRendersDeterministicContent(t *testing.T) {
	deps := testDeps()
	d := NewDispatcher(deps)
	result, err := d.Dispatch(context.Background(), Task{
		Kind:   domain.NodeIngestWebhook,
		Inputs: map[string]interface{}{"data": map[string]interface{}{"msg": "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg: hello", result.Outputs["content"])
	assert.NotEmpty(t, result.Outputs["document_id"])
}

func TestDispatch_IngestWebhookMissingDataFails(t *testing.T) {
	d := NewDispatcher(testDeps())
	_, err := d.Dispatch(context.Background(), Task{Kind: domain.NodeIngestWebhook, Inputs: map[string]interface{}{}})
	assert.ErrorContains(t, err, "data absent")
}

func TestDispatch_UnknownKindFails(t *testing.T) {
	d := NewDispatcher(testDeps())
	_, err := d.Dispatch(context.Background(), Task{Kind: domain.NodeKind("bogus")})
	assert.ErrorContains(t, err, "no handler registered")
}

func TestDispatch_RecoversHandlerPanic(t *testing.T) {
	deps := testDeps()
	d := NewDispatcher(deps)
	d.handlers[domain.NodeTextTransform] = func(context.Context, *Dependencies, Task) (Result, error) {
		panic("boom")
	}
	_, err := d.Dispatch(context.Background(), Task{Kind: domain.NodeTextTransform})
	assert.ErrorContains(t, err, "panic")
}

type fakeLogAppender struct {
	entries []*domain.RunLog
}

func (a *fakeLogAppender) Append(_ context.Context, entry *domain.RunLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

type fakeCompletionPublisher struct {
	signals []broker.CompletionSignal
}

func (p *fakeCompletionPublisher) PublishCompletion(_ context.Context, sig broker.CompletionSignal) error {
	p.signals = append(p.signals, sig)
	return nil
}

func TestWorker_HandleTask_PublishesCompletionOnSuccess(t *testing.T) {
	d := NewDispatcher(testDeps())
	logs := &fakeLogAppender{}
	pub := &fakeCompletionPublisher{}
	w := NewWorker(d, logs, pub, logger.New("error", "json"))

	err := w.HandleTask(context.Background(), broker.NodeTask{
		RunID:  "run-1",
		NodeID: "n1",
		Kind:   domain.NodeTextTransform,
		Config: map[string]interface{}{"operation": "reverse"},
		Inputs: map[string]interface{}{"content": "abc"},
	})
	require.NoError(t, err)
	require.Len(t, pub.signals, 1)
	assert.Equal(t, domain.NodeCompleted, pub.signals[0].Status)
	assert.Equal(t, "cba", pub.signals[0].Outputs["transformed_text"])
}

func TestWorker_HandleTask_PublishesFailureWithoutPropagatingError(t *testing.T) {
	d := NewDispatcher(testDeps())
	logs := &fakeLogAppender{}
	pub := &fakeCompletionPublisher{}
	w := NewWorker(d, logs, pub, logger.New("error", "json"))

	err := w.HandleTask(context.Background(), broker.NodeTask{
		RunID:  "run-1",
		NodeID: "n1",
		Kind:   domain.NodeTextTransform,
		Config: map[string]interface{}{"operation": "bogus"},
		Inputs: map[string]interface{}{"content": "abc"},
	})
	require.NoError(t, err)
	require.Len(t, pub.signals, 1)
	assert.Equal(t, domain.NodeFailed, pub.signals[0].Status)
	assert.Contains(t, pub.signals[0].Error, "unknown operation")
}
