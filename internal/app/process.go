package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"docsummary/pkg/domain"
)

// ProcessDocument runs one processing attempt for a pending document:
// extract text from the stored bytes, summarize it, persist the result.
// Step failures land in the persisted Failed state rather than propagating;
// the returned error is reserved for repository unavailability, unknown ids,
// and concurrent-attempt rejection.
func (a *App) ProcessDocument(ctx context.Context, id string) (domain.Document, error) {
	if !a.acquire(id) {
		return domain.Document{}, ErrAlreadyProcessing
	}
	defer a.release(id)

	doc, err := a.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.Status.Terminal() {
		return doc, fmt.Errorf("document %s is %s; reprocessing requires retry", id, doc.Status)
	}
	if doc.Status == domain.StatusProcessing {
		// Stranded by a crashed instance. Only an explicit retry may pick
		// it back up.
		return doc, ErrAlreadyProcessing
	}
	if err := doc.Transition(domain.StatusProcessing, "", time.Now()); err != nil {
		return doc, err
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return doc, err
	}
	return a.run(ctx, doc)
}

// Retry re-enters the state machine from a terminal state, clearing the
// previous attempt's outputs so extraction and summarization start from
// scratch. A document stranded in Processing (crashed instance) is first
// rolled back to Pending, then retried.
func (a *App) Retry(ctx context.Context, id string) (domain.Document, error) {
	if !a.acquire(id) {
		return domain.Document{}, ErrAlreadyProcessing
	}
	defer a.release(id)

	doc, err := a.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	now := time.Now()
	if doc.Status == domain.StatusProcessing {
		if err := doc.Transition(domain.StatusPending, "", now); err != nil {
			return doc, err
		}
	}
	doc.ExtractedText = ""
	if err := doc.Transition(domain.StatusProcessing, "", now); err != nil {
		return doc, err
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return doc, err
	}
	return a.run(ctx, doc)
}

// ProcessPending processes every pending document, bounded by the configured
// concurrency. Different documents run in parallel; the per-id guard still
// serializes attempts on the same document.
func (a *App) ProcessPending(ctx context.Context) error {
	docs, err := a.store.ListActiveDocuments()
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, doc := range docs {
		if doc.Status != domain.StatusPending {
			continue
		}
		id := doc.ID
		g.Go(func() error {
			_, err := a.ProcessDocument(ctx, id)
			if err == ErrAlreadyProcessing || err == ErrDocumentNotFound {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// run executes the pipeline for a document already persisted as Processing.
func (a *App) run(ctx context.Context, doc domain.Document) (domain.Document, error) {
	data, err := a.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		if ctx.Err() != nil {
			return a.rollback(doc)
		}
		return a.fail(doc, fmt.Sprintf("load stored bytes: %v", err))
	}
	if ctx.Err() != nil {
		return a.rollback(doc)
	}

	text, err := a.extractor.Extract(data, doc.ContentType)
	if err != nil {
		if ctx.Err() != nil {
			return a.rollback(doc)
		}
		return a.fail(doc, fmt.Sprintf("extract text: %v", err))
	}
	doc.ExtractedText = text
	doc.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveDocument(doc); err != nil {
		return doc, err
	}

	summary, err := a.summarizer.Summarize(ctx, text, a.sumOpts)
	if err != nil {
		if ctx.Err() != nil {
			// Extracted text is already persisted; rolling back would lose
			// it, so record the cancellation as a failure instead.
			return a.fail(doc, fmt.Sprintf("processing cancelled: %v", ctx.Err()))
		}
		return a.fail(doc, fmt.Sprintf("summarize: %v", err))
	}

	doc.Summary = summary.Text
	doc.SummaryMeta = &domain.SummaryMeta{
		Model:       summary.Model,
		Truncated:   summary.Truncated,
		InputRunes:  summary.InputRunes,
		GeneratedAt: time.Now().UTC(),
	}
	if err := doc.Transition(domain.StatusProcessed, "", time.Now()); err != nil {
		return doc, err
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return doc, err
	}
	slog.Info("document processed",
		"document_id", doc.ID,
		"model", summary.Model,
		"truncated", summary.Truncated,
	)
	return doc, nil
}

// fail records a terminal failure with the given reason. The reason carries
// the step and cause so an operator can tell format problems from transient
// network or credential trouble.
func (a *App) fail(doc domain.Document, reason string) (domain.Document, error) {
	if err := doc.Transition(domain.StatusFailed, reason, time.Now()); err != nil {
		return doc, err
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return doc, err
	}
	slog.Warn("document processing failed", "document_id", doc.ID, "reason", reason)
	return doc, nil
}

// rollback returns a document to Pending after a cancellation that happened
// before any attempt output was persisted.
func (a *App) rollback(doc domain.Document) (domain.Document, error) {
	if err := doc.Transition(domain.StatusPending, "", time.Now()); err != nil {
		return doc, err
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return doc, err
	}
	slog.Info("document processing cancelled before output, returned to pending", "document_id", doc.ID)
	return doc, nil
}
