package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"docsummary/pkg/ai"
	"docsummary/pkg/domain"
	"docsummary/pkg/extract"
	"docsummary/pkg/storage"
	"docsummary/pkg/store"
)

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, text string, opts ai.Options) (ai.Summary, error)
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string, opts ai.Options) (ai.Summary, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, text, opts)
	}
	return ai.Summary{Text: "First. Second. Third.", Model: "fake-model"}, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyStore injects repository failures around a MemoryStore.
type flakyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	failSave bool
}

func (f *flakyStore) SaveDocument(doc domain.Document) error {
	f.mu.Lock()
	failing := f.failSave
	f.mu.Unlock()
	if failing {
		return fmt.Errorf("save document %s: %w: connection refused", doc.ID, store.ErrUnavailable)
	}
	return f.MemoryStore.SaveDocument(doc)
}

func newTestApp(t *testing.T, summarizer ai.Summarizer) (*App, *store.MemoryStore) {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	docs := store.NewMemoryStore()
	a, err := New(Config{
		Store:      docs,
		Blobs:      blobs,
		Extractor:  extract.NewTextExtractor(),
		Summarizer: summarizer,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, docs
}

func submitText(t *testing.T, a *App, content string) domain.Document {
	t.Helper()
	doc, err := a.Submit(context.Background(), "report.txt", "text/plain", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return doc
}

func TestSubmitCreatesPendingDocument(t *testing.T) {
	a, _ := newTestApp(t, &fakeSummarizer{})
	doc := submitText(t, a, "page one text. page two text.")

	if doc.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", doc.Status)
	}
	if doc.StorageKey == "" {
		t.Fatalf("storage key must be set before the document is visible")
	}
	data, err := a.blobs.Get(context.Background(), doc.StorageKey)
	if err != nil {
		t.Fatalf("get stored bytes: %v", err)
	}
	if !bytes.Equal(data, []byte("page one text. page two text.")) {
		t.Fatalf("stored bytes mismatch: %q", data)
	}
}

func TestProcessDocumentSuccess(t *testing.T) {
	fake := &fakeSummarizer{}
	a, docs := newTestApp(t, fake)
	doc := submitText(t, a, "a two page document with enough text to summarize")

	got, err := a.ProcessDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Status != domain.StatusProcessed {
		t.Fatalf("status = %s, want processed", got.Status)
	}
	if got.Summary == "" {
		t.Fatalf("processed document must carry a summary")
	}
	if got.ErrorMessage != "" {
		t.Fatalf("processed document must not carry an error, got %q", got.ErrorMessage)
	}
	if got.SummaryMeta == nil || got.SummaryMeta.Model != "fake-model" {
		t.Fatalf("summary meta = %+v, want model recorded", got.SummaryMeta)
	}

	persisted, ok, _ := docs.GetDocument(doc.ID)
	if !ok || persisted.Status != domain.StatusProcessed {
		t.Fatalf("terminal state not persisted: %+v", persisted)
	}
	if persisted.ExtractedText == "" {
		t.Fatalf("extracted text should be persisted alongside the summary")
	}
}

func TestProcessDocumentUnsupportedFormat(t *testing.T) {
	a, _ := newTestApp(t, &fakeSummarizer{})
	doc, err := a.Submit(context.Background(), "blob.bin", "application/octet-stream", strings.NewReader("junk"), 4)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, err := a.ProcessDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "unsupported") {
		t.Fatalf("error message %q should mention the unsupported format", got.ErrorMessage)
	}
}

func TestProcessDocumentSummarizerUnavailableKeepsExtractedText(t *testing.T) {
	fake := &fakeSummarizer{fn: func(context.Context, string, ai.Options) (ai.Summary, error) {
		return ai.Summary{}, fmt.Errorf("%w: dial tcp: timeout", ai.ErrRemoteUnavailable)
	}}
	a, docs := newTestApp(t, fake)
	doc := submitText(t, a, "some extractable text")

	got, err := a.ProcessDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "unavailable") {
		t.Fatalf("error message %q should indicate remote unavailability", got.ErrorMessage)
	}
	persisted, _, _ := docs.GetDocument(doc.ID)
	if persisted.ExtractedText == "" {
		t.Fatalf("extracted text must survive a summarization failure")
	}
}

func TestRetryAfterTransientFailure(t *testing.T) {
	var failFirst sync.Once
	fake := &fakeSummarizer{}
	fake.fn = func(context.Context, string, ai.Options) (ai.Summary, error) {
		failed := false
		failFirst.Do(func() { failed = true })
		if failed {
			return ai.Summary{}, fmt.Errorf("%w: 429", ai.ErrRateLimited)
		}
		return ai.Summary{Text: "Recovered summary.", Model: "fake-model"}, nil
	}
	a, _ := newTestApp(t, fake)
	doc := submitText(t, a, "content")

	got, err := a.ProcessDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("first attempt: status = %s, want failed", got.Status)
	}

	got, err = a.Retry(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != domain.StatusProcessed {
		t.Fatalf("retry: status = %s, want processed", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("retry must clear the error message, got %q", got.ErrorMessage)
	}
	if got.Summary != "Recovered summary." {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestRetryRerunsExtractionFromScratch(t *testing.T) {
	fake := &fakeSummarizer{fn: func(_ context.Context, text string, _ ai.Options) (ai.Summary, error) {
		return ai.Summary{Text: "Summary of: " + text, Model: "fake-model"}, nil
	}}
	a, docs := newTestApp(t, fake)
	doc := submitText(t, a, "original words")

	if _, err := a.ProcessDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	// Reprocessing a processed document goes through the same explicit
	// retry path as a failed one.
	got, err := a.Retry(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != domain.StatusProcessed {
		t.Fatalf("status = %s, want processed", got.Status)
	}
	if fake.callCount() != 2 {
		t.Fatalf("summarizer calls = %d, want 2", fake.callCount())
	}
	persisted, _, _ := docs.GetDocument(doc.ID)
	if persisted.ExtractedText != "original words" {
		t.Fatalf("extraction did not re-run, extractedText = %q", persisted.ExtractedText)
	}
}

func TestConcurrentProcessSameDocument(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeSummarizer{fn: func(ctx context.Context, _ string, _ ai.Options) (ai.Summary, error) {
		<-release
		return ai.Summary{Text: "done", Model: "fake-model"}, nil
	}}
	a, _ := newTestApp(t, fake)
	doc := submitText(t, a, "content")

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	terminal, rejected := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.ProcessDocument(context.Background(), doc.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && got.Status.Terminal():
				terminal++
			case errors.Is(err, ErrAlreadyProcessing):
				rejected++
			}
		}()
	}
	// Let the guard settle, then release the single in-flight attempt.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if terminal != 1 {
		t.Fatalf("terminal transitions = %d, want exactly 1", terminal)
	}
	if rejected == 0 {
		t.Fatalf("expected concurrent attempts to be rejected")
	}
	if fake.callCount() != 1 {
		t.Fatalf("summarizer calls = %d, want 1", fake.callCount())
	}
}

func TestCancelledBeforeOutputRollsBackToPending(t *testing.T) {
	a, docs := newTestApp(t, &fakeSummarizer{})
	doc := submitText(t, a, "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := a.ProcessDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending after pre-output cancellation", got.Status)
	}
	persisted, _, _ := docs.GetDocument(doc.ID)
	if persisted.Status != domain.StatusPending {
		t.Fatalf("persisted status = %s, want pending", persisted.Status)
	}
}

func TestCancelledDuringSummarizeFailsWithReason(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeSummarizer{fn: func(ctx context.Context, _ string, _ ai.Options) (ai.Summary, error) {
		cancel()
		<-ctx.Done()
		return ai.Summary{}, fmt.Errorf("%w: %v", ai.ErrRemoteUnavailable, ctx.Err())
	}}
	a, docs := newTestApp(t, fake)
	doc := submitText(t, a, "content")

	got, err := a.ProcessDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "cancelled") {
		t.Fatalf("error message %q should mention cancellation", got.ErrorMessage)
	}
	persisted, _, _ := docs.GetDocument(doc.ID)
	if persisted.ExtractedText == "" {
		t.Fatalf("extracted text persisted before cancellation must be kept")
	}
}

func TestRepositoryUnavailableAbortsAttempt(t *testing.T) {
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	flaky := &flakyStore{MemoryStore: store.NewMemoryStore()}
	a, err := New(Config{
		Store:      flaky,
		Blobs:      blobs,
		Extractor:  extract.NewTextExtractor(),
		Summarizer: &fakeSummarizer{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	doc, err := a.Submit(context.Background(), "a.txt", "text/plain", strings.NewReader("text"), 4)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	flaky.mu.Lock()
	flaky.failSave = true
	flaky.mu.Unlock()

	_, err = a.ProcessDocument(context.Background(), doc.ID)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v, want repository unavailability to surface", err)
	}
	persisted, _, _ := flaky.MemoryStore.GetDocument(doc.ID)
	if persisted.Status != domain.StatusPending {
		t.Fatalf("persisted status = %s, want pending (no failed write without a reachable repository)", persisted.Status)
	}
}

func TestProcessPendingProcessesAllPendingDocuments(t *testing.T) {
	fake := &fakeSummarizer{}
	a, docs := newTestApp(t, fake)
	var ids []string
	for i := 0; i < 5; i++ {
		doc := submitText(t, a, fmt.Sprintf("document number %d", i))
		ids = append(ids, doc.ID)
	}
	if err := a.ProcessPending(context.Background()); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	for _, id := range ids {
		persisted, _, _ := docs.GetDocument(id)
		if persisted.Status != domain.StatusProcessed {
			t.Fatalf("document %s status = %s, want processed", id, persisted.Status)
		}
	}
	if fake.callCount() != 5 {
		t.Fatalf("summarizer calls = %d, want 5", fake.callCount())
	}
}

func TestProcessPendingSkipsStrandedProcessingDocuments(t *testing.T) {
	fake := &fakeSummarizer{}
	a, docs := newTestApp(t, fake)
	pending := submitText(t, a, "still waiting")
	stranded := submitText(t, a, "interrupted mid-flight")

	// Simulate a crash that left the document in processing with no
	// attempt in flight.
	doc, _, err := docs.GetDocument(stranded.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := doc.Transition(domain.StatusProcessing, "", time.Now().UTC()); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := docs.SaveDocument(doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := a.ProcessPending(context.Background()); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	persisted, _, _ := docs.GetDocument(pending.ID)
	if persisted.Status != domain.StatusProcessed {
		t.Fatalf("pending document status = %s, want processed", persisted.Status)
	}
	persisted, _, _ = docs.GetDocument(stranded.ID)
	if persisted.Status != domain.StatusProcessing {
		t.Fatalf("stranded document status = %s, sweep must leave it for retry", persisted.Status)
	}
	if fake.callCount() != 1 {
		t.Fatalf("summarizer calls = %d, want 1", fake.callCount())
	}

	// Explicit retry is the recovery path for stranded documents.
	got, err := a.Retry(context.Background(), stranded.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != domain.StatusProcessed {
		t.Fatalf("retried document status = %s, want processed", got.Status)
	}
}

func TestStatusFieldInvariants(t *testing.T) {
	fake := &fakeSummarizer{fn: func(context.Context, string, ai.Options) (ai.Summary, error) {
		return ai.Summary{}, fmt.Errorf("%w: bad key", ai.ErrAuth)
	}}
	a, docs := newTestApp(t, fake)
	doc := submitText(t, a, "content")

	if _, err := a.ProcessDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	fake.mu.Lock()
	fake.fn = nil
	fake.mu.Unlock()
	if _, err := a.Retry(context.Background(), doc.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}

	// After every sequence of transitions: summary set iff processed,
	// error set iff failed.
	persisted, _, _ := docs.GetDocument(doc.ID)
	if (persisted.Status == domain.StatusProcessed) != (persisted.Summary != "") {
		t.Fatalf("summary/status invariant violated: %+v", persisted)
	}
	if (persisted.Status == domain.StatusFailed) != (persisted.ErrorMessage != "") {
		t.Fatalf("error/status invariant violated: %+v", persisted)
	}
}
