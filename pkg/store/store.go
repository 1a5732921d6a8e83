package store

import (
	"errors"

	"docsummary/pkg/domain"
)

// ErrUnavailable reports that the repository cannot be reached. The pipeline
// aborts the current attempt when it sees this, since it cannot guarantee a
// status write either.
var ErrUnavailable = errors.New("document repository unavailable")

// Store defines persistence operations for documents.
type Store interface {
	SaveDocument(doc domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	// ListActiveDocuments returns documents that are not soft-deleted,
	// oldest first.
	ListActiveDocuments() ([]domain.Document, error)
	SoftDeleteDocument(id string) error
}
