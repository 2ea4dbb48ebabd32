// Document upload and retrieval
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prdagent/prdagent/pkg/db"
	"github.com/prdagent/prdagent/pkg/models"
	"github.com/prdagent/prdagent/pkg/utils"
)

// Documents larger than this are rejected at upload.
const maxDocumentBytes = 2 << 20

// DocumentService stores uploaded requirement documents. Raw markdown is
// the canonical representation; downstream citation extraction re-derives
// headings from it rather than relying on any pre-parsed section tree.
type DocumentService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewDocumentService creates a new document service.
func NewDocumentService(database *gorm.DB) *DocumentService {
	return &DocumentService{
		db:     database,
		logger: utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *DocumentService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.Document{})
}

// Upload validates and stores a new document.
func (s *DocumentService) Upload(req *models.UploadDocumentRequest) (*models.Document, error) {
	content := req.Content
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("document content is empty")
	}
	if len(content) > maxDocumentBytes {
		return nil, fmt.Errorf("document too large: %d bytes (limit %d)", len(content), maxDocumentBytes)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled Document"
	}

	doc := &models.Document{
		ID:         uuid.New().String(),
		Title:      title,
		RawContent: content,
		Size:       len(content),
		UploaderID: req.UploaderID,
	}
	if err := s.db.Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	return doc, nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// List returns documents, newest first.
func (s *DocumentService) List(limit, offset int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 20
	}
	var docs []models.Document
	err := s.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, err
}

// Delete removes a document.
func (s *DocumentService) Delete(id string) error {
	return s.db.Delete(&db.Document{}, "id = ?", id).Error
}
