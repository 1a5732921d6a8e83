package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

// SummaryMeta records how a summary was produced so results stay auditable.
type SummaryMeta struct {
	Model       string    `json:"model"`
	Truncated   bool      `json:"truncated"`
	InputRunes  int       `json:"inputRunes"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Document is one uploaded file and its processing outcome.
type Document struct {
	ID            string         `json:"id"`
	FileName      string         `json:"fileName"`
	ContentType   string         `json:"contentType"`
	SizeBytes     int64          `json:"sizeBytes"`
	StorageKey    string         `json:"-"`
	Status        DocumentStatus `json:"status"`
	ExtractedText string         `json:"-"`
	Summary       string         `json:"summary,omitempty"`
	SummaryMeta   *SummaryMeta   `json:"summaryMeta,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	IsDeleted     bool           `json:"-"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
