package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/movira/transreg-backend/config"
	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/app/repository"
	"github.com/movira/transreg-backend/internal/storage"
	"github.com/movira/transreg-backend/pkg/logger"
	"github.com/movira/transreg-backend/pkg/queue"
)

var (
	ErrDocumentNotFound          = errors.New("document not found")
	ErrEntityNotFound            = errors.New("referenced entity not found")
	ErrUnsupportedEntityType     = errors.New("unsupported entity type")
	ErrUnsupportedDocumentType   = errors.New("unsupported document type")
	ErrInvalidVerificationStatus = errors.New("verification target must be approved or rejected")
	ErrDocumentAlreadyDecided    = errors.New("document verification already decided")
	ErrFileTooLarge              = errors.New("file exceeds the maximum allowed size")
	ErrFileTypeNotAllowed        = errors.New("file extension is not allowed")
	ErrQueuePublish              = errors.New("failed to publish processing job")
)

// VerificationNotifier receives verification decisions for in-process
// fan-out (the reviewer dashboard feed). Best effort, never fails the call.
type VerificationNotifier interface {
	NotifyVerification(event queue.VerificationEvent)
}

type UploadInput struct {
	EntityType   model.EntityType
	EntityID     uint
	DocumentType model.DocumentType
	FileName     string // original client file name, used for the extension
	Data         []byte
	UploadedBy   uint
	Priority     queue.Priority
	Metadata     model.JSONMap
	Options      map[string]interface{} // forwarded to the processing job
}

type UploadResult struct {
	Document *model.Document `json:"document"`
	QueueID  string          `json:"queue_id"`
}

type VerifyInput struct {
	DocumentID      uint
	Status          model.VerificationStatus
	VerifiedBy      uint
	Comments        string
	RejectionReason string
	Metadata        model.JSONMap
}

// VerificationResult is the updated record plus the resolved verifier.
type VerificationResult struct {
	Document *model.Document `json:"document"`
	Verifier *model.User     `json:"verifier,omitempty"`
}

type ProcessInput struct {
	DocumentID uint
	Priority   queue.Priority
	Options    map[string]interface{}
}

type ProcessResult struct {
	DocumentID uint   `json:"document_id"`
	QueueID    string `json:"queue_id"`
}

// ProcessingUpdate is the worker callback payload merged into
// processingMetadata. Extra keys are merged as-is.
type ProcessingUpdate struct {
	Status   string
	Progress *int
	Result   interface{}
	Extra    map[string]interface{}
}

type DeleteInput struct {
	DocumentID uint
	Permanent  bool
	Reason     string
	DeletedBy  uint
}

type DeleteResult struct {
	DocumentID uint `json:"document_id"`
	Permanent  bool `json:"permanent"`
}

type DocumentService interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
	UploadBatch(ctx context.Context, inputs []UploadInput) *BatchResult[*UploadResult]
	Get(id uint) (*model.Document, error)
	Download(ctx context.Context, id uint) (*model.Document, []byte, error)
	Verify(ctx context.Context, input VerifyInput) (*VerificationResult, error)
	VerifyBatch(ctx context.Context, inputs []VerifyInput) *BatchResult[*VerificationResult]
	Process(ctx context.Context, input ProcessInput) (*ProcessResult, error)
	ProcessBatch(ctx context.Context, inputs []ProcessInput) *BatchResult[*ProcessResult]
	UpdateProcessingStatus(id uint, update ProcessingUpdate) (*model.Document, error)
	PatchMetadata(id uint, metadata model.JSONMap) (*model.Document, error)
	Delete(ctx context.Context, input DeleteInput) (*DeleteResult, error)
	DeleteBatch(ctx context.Context, inputs []DeleteInput) *BatchResult[*DeleteResult]
}

type documentService struct {
	repo       repository.DocumentRepository
	entityRepo repository.EntityRepository
	blobs      storage.BlobStore
	publisher  queue.Publisher
	notifier   VerificationNotifier
	uploadCfg  config.UploadConfig
}

// NewDocumentService wires the document core. notifier may be nil.
func NewDocumentService(
	repo repository.DocumentRepository,
	entityRepo repository.EntityRepository,
	blobs storage.BlobStore,
	publisher queue.Publisher,
	notifier VerificationNotifier,
	uploadCfg config.UploadConfig,
) DocumentService {
	return &documentService{
		repo:       repo,
		entityRepo: entityRepo,
		blobs:      blobs,
		publisher:  publisher,
		notifier:   notifier,
		uploadCfg:  uploadCfg,
	}
}

// Upload runs the ingestion saga: validate the entity reference, write the
// blob, persist the record, enqueue a processing job. The three side effects
// are sequential, not atomic: an insert failure removes the just-written
// blob; a publish failure keeps both the blob and the row and marks the
// record processing_failed before the error propagates.
func (s *documentService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	logger.Info("Uploading document", map[string]interface{}{
		"entity_type":   input.EntityType,
		"entity_id":     input.EntityID,
		"document_type": input.DocumentType,
		"size":          len(input.Data),
		"uploaded_by":   input.UploadedBy,
	})

	if !input.EntityType.Valid() {
		return nil, ErrUnsupportedEntityType
	}
	if !input.DocumentType.Valid() {
		return nil, ErrUnsupportedDocumentType
	}
	if err := s.validateFile(input.FileName, int64(len(input.Data))); err != nil {
		return nil, err
	}

	exists, err := s.entityRepo.Exists(input.EntityType, input.EntityID)
	if err != nil {
		logger.Error("Failed to resolve entity reference", err, map[string]interface{}{
			"entity_type": input.EntityType,
			"entity_id":   input.EntityID,
		})
		return nil, err
	}
	if !exists {
		logger.Warn("Entity reference not found for upload", map[string]interface{}{
			"entity_type": input.EntityType,
			"entity_id":   input.EntityID,
		})
		return nil, ErrEntityNotFound
	}

	fileName := deriveFileName(input.DocumentType, input.EntityType, input.EntityID, input.FileName)

	path, err := s.blobs.Write(ctx, fileName, input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := &model.Document{
		EntityType:         input.EntityType,
		EntityID:           input.EntityID,
		DocumentType:       input.DocumentType,
		FileName:           fileName,
		FilePath:           path,
		FileSize:           int64(len(input.Data)),
		VerificationStatus: model.VerificationPending,
		Metadata:           input.Metadata,
		IsActive:           true,
		UploadedBy:         input.UploadedBy,
	}
	if err := s.repo.Create(doc); err != nil {
		// Compensate the blob write so a failed insert leaves no orphan.
		if delErr := s.blobs.Delete(ctx, path); delErr != nil {
			logger.Warn("Failed to remove blob after insert failure", map[string]interface{}{
				"path":  path,
				"error": delErr.Error(),
			})
		}
		return nil, err
	}

	priority := input.Priority
	if priority == "" {
		priority = queue.PriorityMedium
	}
	job := queue.ProcessingJob{
		QueueID:    uuid.New().String(),
		DocumentID: doc.ID,
		Priority:   priority,
		Options:    input.Options,
		Timestamp:  time.Now(),
	}
	if err := s.publisher.PublishProcessingJob(ctx, job); err != nil {
		// The blob and row stay committed; mark the record so the failure
		// is visible and re-processable.
		doc.ProcessingMetadata = doc.ProcessingMetadata.Merge(model.JSONMap{
			"status":          "processing_failed",
			"last_error":      err.Error(),
			"last_updated_at": time.Now().Format(time.RFC3339),
		})
		if updErr := s.repo.Update(doc); updErr != nil {
			logger.Error("Failed to mark document processing_failed", updErr, map[string]interface{}{
				"document_id": doc.ID,
			})
		}
		return nil, fmt.Errorf("%w: %v", ErrQueuePublish, err)
	}

	logger.Info("Document uploaded", map[string]interface{}{
		"document_id": doc.ID,
		"file_name":   doc.FileName,
		"queue_id":    job.QueueID,
	})
	return &UploadResult{Document: doc, QueueID: job.QueueID}, nil
}

func (s *documentService) UploadBatch(ctx context.Context, inputs []UploadInput) *BatchResult[*UploadResult] {
	return runBatch(inputs, func(i int, input UploadInput) string {
		if input.FileName != "" {
			return input.FileName
		}
		return fmt.Sprintf("%d", i+1)
	}, func(input UploadInput) (*UploadResult, error) {
		return s.Upload(ctx, input)
	})
}

func (s *documentService) Get(id uint) (*model.Document, error) {
	doc, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) Download(ctx context.Context, id uint) (*model.Document, []byte, error) {
	doc, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.blobs.Read(ctx, doc.FilePath)
	if err != nil {
		logger.Error("Failed to read document blob", err, map[string]interface{}{
			"document_id": id,
			"file_path":   doc.FilePath,
		})
		return nil, nil, err
	}
	return doc, data, nil
}

// Verify drives the verification state machine. pending is the only state a
// decision may leave; approved and rejected are terminal.
func (s *documentService) Verify(ctx context.Context, input VerifyInput) (*VerificationResult, error) {
	logger.Info("Verifying document", map[string]interface{}{
		"document_id": input.DocumentID,
		"status":      input.Status,
		"verified_by": input.VerifiedBy,
	})

	if input.Status != model.VerificationApproved && input.Status != model.VerificationRejected {
		return nil, ErrInvalidVerificationStatus
	}

	doc, err := s.Get(input.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Decided() {
		logger.Warn("Attempt to re-decide a decided document", map[string]interface{}{
			"document_id": doc.ID,
			"status":      doc.VerificationStatus,
		})
		return nil, ErrDocumentAlreadyDecided
	}

	now := time.Now()
	doc.VerificationStatus = input.Status
	doc.VerifiedBy = &input.VerifiedBy
	doc.VerifiedAt = &now
	if input.Comments != "" {
		doc.VerificationComments = input.Comments
	}
	// A rejection without a reason is accepted; the reason is optional.
	if input.Status == model.VerificationRejected && input.RejectionReason != "" {
		doc.RejectionReason = input.RejectionReason
	}
	doc.Metadata = doc.Metadata.Merge(input.Metadata)

	if err := s.repo.Update(doc); err != nil {
		return nil, err
	}

	event := queue.VerificationEvent{
		DocumentID: doc.ID,
		EntityType: string(doc.EntityType),
		EntityID:   doc.EntityID,
		Status:     string(doc.VerificationStatus),
		VerifiedBy: input.VerifiedBy,
		Timestamp:  now,
	}
	if s.notifier != nil {
		s.notifier.NotifyVerification(event)
	}
	if err := s.publisher.PublishVerificationEvent(ctx, event); err != nil {
		// The decision is committed; the publish failure still surfaces.
		return nil, fmt.Errorf("%w: %v", ErrQueuePublish, err)
	}

	result := &VerificationResult{Document: doc}
	if verifier, err := s.entityRepo.FindUser(input.VerifiedBy); err == nil {
		result.Verifier = verifier
	} else {
		logger.Warn("Failed to resolve verifier identity", map[string]interface{}{
			"verified_by": input.VerifiedBy,
			"error":       err.Error(),
		})
	}
	return result, nil
}

func (s *documentService) VerifyBatch(ctx context.Context, inputs []VerifyInput) *BatchResult[*VerificationResult] {
	return runBatch(inputs, func(_ int, input VerifyInput) string {
		return fmt.Sprintf("%d", input.DocumentID)
	}, func(input VerifyInput) (*VerificationResult, error) {
		return s.Verify(ctx, input)
	})
}

// Process re-enqueues an existing document for content processing. Each call
// produces a fresh job; enqueueing is not idempotent.
func (s *documentService) Process(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	doc, err := s.Get(input.DocumentID)
	if err != nil {
		return nil, err
	}

	priority := input.Priority
	if priority == "" {
		priority = queue.PriorityMedium
	}
	job := queue.ProcessingJob{
		QueueID:    uuid.New().String(),
		DocumentID: doc.ID,
		Priority:   priority,
		Options:    input.Options,
		Timestamp:  time.Now(),
	}
	if err := s.publisher.PublishProcessingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueuePublish, err)
	}

	return &ProcessResult{DocumentID: doc.ID, QueueID: job.QueueID}, nil
}

func (s *documentService) ProcessBatch(ctx context.Context, inputs []ProcessInput) *BatchResult[*ProcessResult] {
	return runBatch(inputs, func(_ int, input ProcessInput) string {
		return fmt.Sprintf("%d", input.DocumentID)
	}, func(input ProcessInput) (*ProcessResult, error) {
		return s.Process(ctx, input)
	})
}

// UpdateProcessingStatus merges a worker's status callback into
// processingMetadata, leaving every other field untouched.
func (s *documentService) UpdateProcessingStatus(id uint, update ProcessingUpdate) (*model.Document, error) {
	doc, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	merged := model.JSONMap{
		"last_updated_at": time.Now().Format(time.RFC3339),
	}
	if update.Status != "" {
		merged["status"] = update.Status
	}
	if update.Progress != nil {
		merged["progress"] = *update.Progress
	}
	if update.Result != nil {
		merged["result"] = update.Result
	}
	for k, v := range update.Extra {
		merged[k] = v
	}
	doc.ProcessingMetadata = doc.ProcessingMetadata.Merge(merged)

	if err := s.repo.Update(doc); err != nil {
		return nil, err
	}

	logger.Debug("Processing status updated", map[string]interface{}{
		"document_id": doc.ID,
		"status":      update.Status,
	})
	return doc, nil
}

func (s *documentService) PatchMetadata(id uint, metadata model.JSONMap) (*model.Document, error) {
	doc, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	doc.Metadata = doc.Metadata.Merge(metadata)
	if err := s.repo.Update(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete soft-deletes by default: the row and blob are retained for audit
// with IsActive=false. A permanent delete removes the blob (no-op if already
// absent) and the row.
func (s *documentService) Delete(ctx context.Context, input DeleteInput) (*DeleteResult, error) {
	doc, err := s.Get(input.DocumentID)
	if err != nil {
		return nil, err
	}

	if input.Permanent {
		if err := s.blobs.Delete(ctx, doc.FilePath); err != nil {
			return nil, err
		}
		if err := s.repo.Delete(doc.ID); err != nil {
			return nil, err
		}
		logger.Info("Document permanently deleted", map[string]interface{}{
			"document_id": doc.ID,
			"file_name":   doc.FileName,
		})
		return &DeleteResult{DocumentID: doc.ID, Permanent: true}, nil
	}

	deletion := model.JSONMap{
		"deleted_at": time.Now().Format(time.RFC3339),
		"deleted_by": input.DeletedBy,
	}
	if input.Reason != "" {
		deletion["deleted_reason"] = input.Reason
	}
	doc.IsActive = false
	doc.Metadata = doc.Metadata.Merge(deletion)

	if err := s.repo.Update(doc); err != nil {
		return nil, err
	}

	logger.Info("Document soft-deleted", map[string]interface{}{
		"document_id": doc.ID,
	})
	return &DeleteResult{DocumentID: doc.ID, Permanent: false}, nil
}

func (s *documentService) DeleteBatch(ctx context.Context, inputs []DeleteInput) *BatchResult[*DeleteResult] {
	return runBatch(inputs, func(_ int, input DeleteInput) string {
		return fmt.Sprintf("%d", input.DocumentID)
	}, func(input DeleteInput) (*DeleteResult, error) {
		return s.Delete(ctx, input)
	})
}

func (s *documentService) validateFile(fileName string, size int64) error {
	if s.uploadCfg.MaxFileSize > 0 && size > s.uploadCfg.MaxFileSize {
		return ErrFileTooLarge
	}
	if len(s.uploadCfg.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range s.uploadCfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return ErrFileTypeNotAllowed
}

// deriveFileName builds the globally unique stored name:
// <documentType>_<entityType>_<entityId>_<uuid><ext>. The fresh UUID makes
// concurrent uploads of the same triple collision-free without coordination.
func deriveFileName(docType model.DocumentType, entityType model.EntityType, entityID uint, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%s_%s_%d_%s%s", docType, entityType, entityID, uuid.New().String(), ext)
}
