package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"docsummary/pkg/domain"
)

const migrateLockID int64 = 48121620

// DocumentModel is the GORM persistence model for documents.
type DocumentModel struct {
	ID            string `gorm:"primaryKey"`
	FileName      string `gorm:"not null"`
	ContentType   string `gorm:"not null"`
	SizeBytes     int64  `gorm:"not null"`
	StorageKey    string
	Status        string         `gorm:"not null;index"`
	ExtractedText string         `gorm:"type:text"`
	Summary       string         `gorm:"type:text"`
	SummaryMeta   datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage  string
	IsDeleted     bool      `gorm:"not null;default:false;index"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrateLockID).Error; err != nil {
			return fmt.Errorf("acquire migrate lock: %w", err)
		}
		if err := tx.AutoMigrate(&DocumentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// SaveDocument inserts or replaces the full document record.
func (g *GormStore) SaveDocument(doc domain.Document) error {
	model, err := toModel(doc)
	if err != nil {
		return err
	}
	if err := g.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save document %s: %w: %v", doc.ID, ErrUnavailable, err)
	}
	return nil
}

// GetDocument loads one document by id, including soft-deleted records.
func (g *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	err := g.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("get document %s: %w: %v", id, ErrUnavailable, err)
	}
	doc, err := toDomain(model)
	if err != nil {
		return domain.Document{}, false, err
	}
	return doc, true, nil
}

// ListActiveDocuments returns non-deleted documents, oldest first.
func (g *GormStore) ListActiveDocuments() ([]domain.Document, error) {
	var models []DocumentModel
	if err := g.db.Where("is_deleted = ?", false).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w: %v", ErrUnavailable, err)
	}
	docs := make([]domain.Document, 0, len(models))
	for _, model := range models {
		doc, err := toDomain(model)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// SoftDeleteDocument hides the document from active listings. The record and
// its stored bytes are kept.
func (g *GormStore) SoftDeleteDocument(id string) error {
	res := g.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_deleted": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("soft delete document %s: %w: %v", id, ErrUnavailable, res.Error)
	}
	return nil
}

func toModel(doc domain.Document) (DocumentModel, error) {
	model := DocumentModel{
		ID:            doc.ID,
		FileName:      doc.FileName,
		ContentType:   doc.ContentType,
		SizeBytes:     doc.SizeBytes,
		StorageKey:    doc.StorageKey,
		Status:        string(doc.Status),
		ExtractedText: doc.ExtractedText,
		Summary:       doc.Summary,
		ErrorMessage:  doc.ErrorMessage,
		IsDeleted:     doc.IsDeleted,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.SummaryMeta != nil {
		raw, err := json.Marshal(doc.SummaryMeta)
		if err != nil {
			return DocumentModel{}, fmt.Errorf("encode summary meta: %w", err)
		}
		model.SummaryMeta = datatypes.JSON(raw)
	}
	return model, nil
}

func toDomain(model DocumentModel) (domain.Document, error) {
	doc := domain.Document{
		ID:            model.ID,
		FileName:      model.FileName,
		ContentType:   model.ContentType,
		SizeBytes:     model.SizeBytes,
		StorageKey:    model.StorageKey,
		Status:        domain.DocumentStatus(model.Status),
		ExtractedText: model.ExtractedText,
		Summary:       model.Summary,
		ErrorMessage:  model.ErrorMessage,
		IsDeleted:     model.IsDeleted,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
	if len(model.SummaryMeta) > 0 {
		var meta domain.SummaryMeta
		if err := json.Unmarshal(model.SummaryMeta, &meta); err != nil {
			return domain.Document{}, fmt.Errorf("decode summary meta for %s: %w", model.ID, err)
		}
		doc.SummaryMeta = &meta
	}
	return doc, nil
}
