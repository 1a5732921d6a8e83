package store

import (
	"sync"

	"docsummary/pkg/domain"
)

// MemoryStore keeps documents in-process. Used in tests and for running the
// service without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]domain.Document
	orders []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]domain.Document)}
}

// SaveDocument stores or replaces a document and tracks insertion order.
func (m *MemoryStore) SaveDocument(doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; !exists {
		m.orders = append(m.orders, doc.ID)
	}
	if doc.SummaryMeta != nil {
		meta := *doc.SummaryMeta
		doc.SummaryMeta = &meta
	}
	m.docs[doc.ID] = doc
	return nil
}

// GetDocument returns a document by id, including soft-deleted records.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return doc, ok, nil
}

// ListActiveDocuments returns non-deleted documents in insertion order.
func (m *MemoryStore) ListActiveDocuments() ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.orders))
	for _, id := range m.orders {
		if doc, ok := m.docs[id]; ok && !doc.IsDeleted {
			res = append(res, doc)
		}
	}
	return res, nil
}

// SoftDeleteDocument marks a document deleted without removing the record.
func (m *MemoryStore) SoftDeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil
	}
	doc.IsDeleted = true
	m.docs[id] = doc
	return nil
}
