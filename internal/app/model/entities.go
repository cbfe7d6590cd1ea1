package model

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleUser     UserRole = "user"
	RoleReviewer UserRole = "reviewer" // compliance reviewer, may decide verifications
	RoleAdmin    UserRole = "admin"
)

// User is a back-office account. Credential management lives in the identity
// service; this table only anchors document references and verifier identity.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Name      string         `gorm:"not null" json:"name"`
	Role      UserRole       `gorm:"type:varchar(20);default:'user'" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Driver is a registered driver record.
type Driver struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	Name          string         `gorm:"not null" json:"name"`
	LicenseNumber string         `gorm:"uniqueIndex;not null" json:"license_number"`
	Phone         string         `json:"phone"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Driver) TableName() string {
	return "drivers"
}

// Vehicle is a registered vehicle record.
type Vehicle struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	PlateNumber string         `gorm:"uniqueIndex;not null" json:"plate_number"`
	Make        string         `json:"make"`
	Model       string         `json:"model"`
	Year        int            `json:"year"`
	OwnerID     *uint          `gorm:"index" json:"owner_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}
