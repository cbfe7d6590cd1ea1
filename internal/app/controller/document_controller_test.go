package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/movira/transreg-backend/config"
	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/app/repository"
	"github.com/movira/transreg-backend/internal/app/service"
	"github.com/movira/transreg-backend/internal/db"
	"github.com/movira/transreg-backend/internal/storage"
	"github.com/movira/transreg-backend/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memBlobStore keeps blobs in a map for controller tests.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (m *memBlobStore) Write(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = data
	return name, nil
}

func (m *memBlobStore) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[path]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

func (m *memBlobStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[path]
	return ok, nil
}

func (m *memBlobStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

func (m *memBlobStore) Size(_ context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.blobs[path])), nil
}

func (m *memBlobStore) List(_ context.Context) ([]storage.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]storage.BlobInfo, 0, len(m.blobs))
	for name, data := range m.blobs {
		infos = append(infos, storage.BlobInfo{Name: name, Size: int64(len(data)), ModTime: time.Now()})
	}
	return infos, nil
}

func (m *memBlobStore) PathFor(name string) string { return name }

type noopPublisher struct{}

func (noopPublisher) PublishProcessingJob(context.Context, queue.ProcessingJob) error { return nil }
func (noopPublisher) PublishVerificationEvent(context.Context, queue.VerificationEvent) error {
	return nil
}
func (noopPublisher) Close() error { return nil }

func setupDocumentControllerTest(t *testing.T) (*DocumentController, *gin.Engine, *gorm.DB, *model.Driver) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	documentRepo := repository.NewDocumentRepository(testDB, nil)
	entityRepo := repository.NewEntityRepository(testDB)
	documentService := service.NewDocumentService(
		documentRepo, entityRepo, newMemBlobStore(), noopPublisher{}, nil,
		config.UploadConfig{MaxFileSize: 10 * 1024 * 1024, AllowedExtensions: []string{".pdf", ".jpg"}},
	)
	queryService := service.NewDocumentQueryService(documentRepo, nil)
	controller := NewDocumentController(documentService, queryService)

	driver := &model.Driver{Name: "Test Driver", LicenseNumber: "DL-2024-0001"}
	testDB.Create(driver)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	return controller, router, testDB, driver
}

func setUserIDInContext(c *gin.Context, userID uint) {
	c.Set("user_id", userID)
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}
	for name, data := range files {
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestDocumentController_Upload_Success(t *testing.T) {
	controller, router, _, driver := setupDocumentControllerTest(t)

	router.POST("/documents", func(c *gin.Context) {
		setUserIDInContext(c, 1)
		controller.Upload(c)
	})

	body, contentType := multipartUpload(t, map[string]string{
		"entity_type":   "driver",
		"entity_id":     fmt.Sprintf("%d", driver.ID),
		"document_type": "driver_license",
		"priority":      "high",
		"metadata":      `{"issued_by":"city office"}`,
	}, map[string][]byte{"license.pdf": []byte("%PDF-1.4 test")})

	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "success", envelope["status"])

	data := envelope["data"].(map[string]interface{})
	assert.NotEmpty(t, data["queue_id"])
	document := data["document"].(map[string]interface{})
	assert.Equal(t, "pending", document["verification_status"])
}

func TestDocumentController_Upload_MissingFile(t *testing.T) {
	controller, router, _, driver := setupDocumentControllerTest(t)

	router.POST("/documents", func(c *gin.Context) {
		setUserIDInContext(c, 1)
		controller.Upload(c)
	})

	body, contentType := multipartUpload(t, map[string]string{
		"entity_type":   "driver",
		"entity_id":     fmt.Sprintf("%d", driver.ID),
		"document_type": "driver_license",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentController_Upload_UnknownEntity(t *testing.T) {
	controller, router, _, _ := setupDocumentControllerTest(t)

	router.POST("/documents", func(c *gin.Context) {
		setUserIDInContext(c, 1)
		controller.Upload(c)
	})

	body, contentType := multipartUpload(t, map[string]string{
		"entity_type":   "driver",
		"entity_id":     "9999",
		"document_type": "driver_license",
	}, map[string][]byte{"license.pdf": []byte("data")})

	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "DOCUMENT_ENTITY_NOT_FOUND", envelope["error"])
}

func TestDocumentController_UploadBatch_Partial(t *testing.T) {
	controller, router, _, driver := setupDocumentControllerTest(t)

	router.POST("/documents/batch", func(c *gin.Context) {
		setUserIDInContext(c, 1)
		controller.UploadBatch(c)
	})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
	}
	configs := fmt.Sprintf(
		`[{"document_type":"driver_license","entity_type":"driver","entity_id":%d},`+
			`{"document_type":"driver_license","entity_type":"driver","entity_id":9999}]`,
		driver.ID,
	)
	require.NoError(t, writer.WriteField("configs", configs))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/batch", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// One success, one failure: partial outcome, not an error.
	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "partial", envelope["status"])

	data := envelope["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["success_count"])
	assert.EqualValues(t, 1, data["failure_count"])
}

func TestDocumentController_Get_NotFound(t *testing.T) {
	controller, router, _, _ := setupDocumentControllerTest(t)

	router.GET("/documents/:id", controller.Get)

	req := httptest.NewRequest(http.MethodGet, "/documents/424242", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", envelope["error"])
}

func TestDocumentController_Get_InvalidID(t *testing.T) {
	controller, router, _, _ := setupDocumentControllerTest(t)

	router.GET("/documents/:id", controller.Get)

	req := httptest.NewRequest(http.MethodGet, "/documents/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentController_Verify_Flow(t *testing.T) {
	controller, router, testDB, driver := setupDocumentControllerTest(t)

	reviewer := &model.User{Email: "reviewer@example.com", Name: "Reviewer", Role: model.RoleReviewer}
	testDB.Create(reviewer)

	doc := &model.Document{
		EntityType:         model.EntityDriver,
		EntityID:           driver.ID,
		DocumentType:       model.DocumentDriverLicense,
		FileName:           "driver_license_driver_1_x.pdf",
		FilePath:           "/blobs/x.pdf",
		VerificationStatus: model.VerificationPending,
		IsActive:           true,
		UploadedBy:         1,
	}
	require.NoError(t, testDB.Create(doc).Error)

	router.PUT("/documents/:id/verify", func(c *gin.Context) {
		setUserIDInContext(c, reviewer.ID)
		controller.Verify(c)
	})

	payload := `{"verification_status":"approved","comments":"looks valid"}`
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/documents/%d/verify", doc.ID), bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// A second decision is rejected with a conflict.
	req = httptest.NewRequest(http.MethodPut, fmt.Sprintf("/documents/%d/verify", doc.ID), bytes.NewBufferString(`{"verification_status":"rejected"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "DOCUMENT_ALREADY_DECIDED", envelope["error"])
}

func TestDocumentController_List_And_Statistics(t *testing.T) {
	controller, router, testDB, driver := setupDocumentControllerTest(t)

	for i := 0; i < 3; i++ {
		doc := &model.Document{
			EntityType:         model.EntityDriver,
			EntityID:           driver.ID,
			DocumentType:       model.DocumentDriverLicense,
			FileName:           fmt.Sprintf("driver_license_driver_1_seed%d.pdf", i),
			FilePath:           "/blobs/seed.pdf",
			VerificationStatus: model.VerificationPending,
			IsActive:           true,
			UploadedBy:         1,
		}
		require.NoError(t, testDB.Create(doc).Error)
	}

	router.GET("/documents", controller.List)
	router.GET("/documents/statistics", controller.Statistics)

	req := httptest.NewRequest(http.MethodGet, "/documents?entity_type=driver&limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["total_count"])
	assert.EqualValues(t, 2, data["page_size"])

	req = httptest.NewRequest(http.MethodGet, "/documents/statistics", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 3, stats["total_documents"])
	assert.EqualValues(t, 3, stats["pending_documents"])
}

func TestDocumentController_List_InvalidEntityType(t *testing.T) {
	controller, router, _, _ := setupDocumentControllerTest(t)

	router.GET("/documents", controller.List)

	req := httptest.NewRequest(http.MethodGet, "/documents?entity_type=warehouse", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentController_Delete_SoftAndPermanent(t *testing.T) {
	controller, router, testDB, driver := setupDocumentControllerTest(t)

	doc := &model.Document{
		EntityType:         model.EntityDriver,
		EntityID:           driver.ID,
		DocumentType:       model.DocumentDriverLicense,
		FileName:           "driver_license_driver_1_del.pdf",
		FilePath:           "/blobs/del.pdf",
		VerificationStatus: model.VerificationPending,
		IsActive:           true,
		UploadedBy:         1,
	}
	require.NoError(t, testDB.Create(doc).Error)

	router.DELETE("/documents/:id", func(c *gin.Context) {
		setUserIDInContext(c, 1)
		controller.Delete(c)
	})

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/documents/%d", doc.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var reloaded model.Document
	require.NoError(t, testDB.First(&reloaded, doc.ID).Error)
	assert.False(t, reloaded.IsActive)

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/documents/%d?permanent=true", doc.ID), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var count int64
	testDB.Model(&model.Document{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestDocumentController_UpdateProcessingStatus(t *testing.T) {
	controller, router, testDB, driver := setupDocumentControllerTest(t)

	doc := &model.Document{
		EntityType:         model.EntityDriver,
		EntityID:           driver.ID,
		DocumentType:       model.DocumentDriverLicense,
		FileName:           "driver_license_driver_1_proc.pdf",
		FilePath:           "/blobs/proc.pdf",
		VerificationStatus: model.VerificationPending,
		IsActive:           true,
		UploadedBy:         1,
	}
	require.NoError(t, testDB.Create(doc).Error)

	router.PUT("/documents/:id/processing", controller.UpdateProcessingStatus)

	payload := `{"status":"completed","progress":100,"result":{"pages":2}}`
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/documents/%d/processing", doc.ID), bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	document := decodeEnvelope(t, w)["data"].(map[string]interface{})
	processing := document["processing_metadata"].(map[string]interface{})
	assert.Equal(t, "completed", processing["status"])
	assert.EqualValues(t, 100, processing["progress"])
}
