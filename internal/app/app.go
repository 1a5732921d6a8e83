package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsummary/pkg/ai"
	"docsummary/pkg/domain"
	"docsummary/pkg/extract"
	"docsummary/pkg/storage"
	"docsummary/pkg/store"
)

var (
	// ErrDocumentNotFound reports an unknown or soft-deleted document id.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrAlreadyProcessing reports a second processing attempt for a
	// document that already has one in flight.
	ErrAlreadyProcessing = errors.New("document is already being processed")
)

// Config wires the pipeline's collaborators. All of them are required.
type Config struct {
	Store      store.Store
	Blobs      storage.BlobStore
	Extractor  extract.Extractor
	Summarizer ai.Summarizer

	// SummarizeOptions apply to every summarization call.
	SummarizeOptions ai.Options
	// ProcessConcurrency bounds ProcessPending's parallelism.
	ProcessConcurrency int
}

// App drives documents through the processing lifecycle.
type App struct {
	store       store.Store
	blobs       storage.BlobStore
	extractor   extract.Extractor
	summarizer  ai.Summarizer
	sumOpts     ai.Options
	concurrency int

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs the pipeline application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("summarizer required")
	}
	concurrency := cfg.ProcessConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &App{
		store:       cfg.Store,
		blobs:       cfg.Blobs,
		extractor:   cfg.Extractor,
		summarizer:  cfg.Summarizer,
		sumOpts:     cfg.SummarizeOptions,
		concurrency: concurrency,
		inflight:    make(map[string]struct{}),
	}, nil
}

// Submit stores the uploaded bytes and creates a pending document record.
// Processing is triggered separately via ProcessDocument.
func (a *App) Submit(ctx context.Context, fileName, contentType string, r io.Reader, size int64) (domain.Document, error) {
	if strings.TrimSpace(fileName) == "" {
		return domain.Document{}, errors.New("file name required")
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	doc := domain.Document{
		ID:          id,
		FileName:    filepath.Base(fileName),
		ContentType: contentType,
		SizeBytes:   size,
		StorageKey:  buildStorageKey(id, fileName),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// The key embeds the fresh document id, so a retried put can never
	// overwrite another document's bytes.
	if err := a.blobs.Put(ctx, doc.StorageKey, r, size, contentType); err != nil {
		return domain.Document{}, fmt.Errorf("store upload: %w", err)
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// GetDocument returns one document, including terminal results.
func (a *App) GetDocument(id string) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok || doc.IsDeleted {
		return domain.Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// ListDocuments returns all active documents.
func (a *App) ListDocuments() ([]domain.Document, error) {
	return a.store.ListActiveDocuments()
}

// DeleteDocument soft-deletes a document. Stored bytes are kept.
func (a *App) DeleteDocument(id string) error {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return err
	}
	if !ok || doc.IsDeleted {
		return ErrDocumentNotFound
	}
	return a.store.SoftDeleteDocument(id)
}

// acquire claims the per-document processing slot. At most one attempt per
// document id runs at a time within this process.
func (a *App) acquire(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inflight[id]; busy {
		return false
	}
	a.inflight[id] = struct{}{}
	return true
}

func (a *App) release(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inflight, id)
}

func buildStorageKey(id, fileName string) string {
	name := sanitizeFileName(filepath.Base(fileName))
	if name == "" {
		name = "document"
	}
	return path.Join("documents", id, name)
}

// sanitizeFileName keeps ASCII word characters, dots, and dashes so keys are
// safe for both object storage and the local filesystem.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		isSafe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_'
		if isSafe {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
