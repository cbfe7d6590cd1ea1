package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EntityType names the collection a document is attached to.
type EntityType string

const (
	EntityDriver  EntityType = "driver"
	EntityVehicle EntityType = "vehicle"
	EntityUser    EntityType = "user"
)

// Valid reports whether t is one of the closed entity type set.
func (t EntityType) Valid() bool {
	switch t {
	case EntityDriver, EntityVehicle, EntityUser:
		return true
	}
	return false
}

// DocumentType is the closed set of compliance document kinds.
type DocumentType string

const (
	DocumentDriverLicense       DocumentType = "driver_license"
	DocumentVehicleInsurance    DocumentType = "vehicle_insurance"
	DocumentVehicleRegistration DocumentType = "vehicle_registration"
	DocumentNationalID          DocumentType = "national_id"
	DocumentOperatorPermit      DocumentType = "operator_permit"
)

// Valid reports whether t is one of the closed document type set.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentDriverLicense, DocumentVehicleInsurance, DocumentVehicleRegistration,
		DocumentNationalID, DocumentOperatorPermit:
		return true
	}
	return false
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"  // awaiting review
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// JSONMap stores an open key-value map as serialized JSON text, so free-text
// search can run over the serialized form.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JSONMap", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Merge copies the entries of other into m, overwriting existing keys.
func (m JSONMap) Merge(other JSONMap) JSONMap {
	if len(other) == 0 {
		return m
	}
	if m == nil {
		m = make(JSONMap, len(other))
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Document is one uploaded compliance document tied to a driver, vehicle or
// user. Soft-deleted rows stay in the table with IsActive=false for audit.
type Document struct {
	ID           uint         `gorm:"primarykey" json:"id"`
	EntityType   EntityType   `gorm:"type:varchar(20);not null;index" json:"entity_type"`
	EntityID     uint         `gorm:"not null;index" json:"entity_id"`
	DocumentType DocumentType `gorm:"type:varchar(40);not null;index" json:"document_type"`

	FileName string `gorm:"uniqueIndex;not null" json:"file_name"` // generated, globally unique
	FilePath string `gorm:"type:text;not null" json:"file_path"`
	FileSize int64  `json:"file_size"`

	VerificationStatus   VerificationStatus `gorm:"type:varchar(20);default:'pending';index" json:"verification_status"`
	VerifiedBy           *uint              `gorm:"index" json:"verified_by,omitempty"`
	VerifiedAt           *time.Time         `json:"verified_at,omitempty"`
	VerificationComments string             `gorm:"type:text" json:"verification_comments,omitempty"`
	RejectionReason      string             `gorm:"type:text" json:"rejection_reason,omitempty"`

	Metadata           JSONMap `gorm:"type:text" json:"metadata,omitempty"`            // caller-supplied, merged on update
	ProcessingMetadata JSONMap `gorm:"type:text" json:"processing_metadata,omitempty"` // written by async workers

	IsActive   bool `gorm:"default:true;not null;index" json:"is_active"`
	UploadedBy uint `gorm:"not null;index" json:"uploaded_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// Decided reports whether the verification has left the pending state.
func (d *Document) Decided() bool {
	return d.VerificationStatus != VerificationPending
}
