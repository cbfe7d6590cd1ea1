package repository

import (
	"fmt"

	"github.com/movira/transreg-backend/internal/app/model"
	"gorm.io/gorm"
)

// EntityRepository resolves polymorphic entity references against the
// driver, vehicle and user collections.
type EntityRepository interface {
	Exists(entityType model.EntityType, entityID uint) (bool, error)
	FindUser(id uint) (*model.User, error)
}

type entityRepository struct {
	db *gorm.DB
}

func NewEntityRepository(db *gorm.DB) EntityRepository {
	return &entityRepository{db: db}
}

func (r *entityRepository) Exists(entityType model.EntityType, entityID uint) (bool, error) {
	var target interface{}
	switch entityType {
	case model.EntityDriver:
		target = &model.Driver{}
	case model.EntityVehicle:
		target = &model.Vehicle{}
	case model.EntityUser:
		target = &model.User{}
	default:
		return false, fmt.Errorf("unknown entity type %q", entityType)
	}

	var count int64
	if err := r.db.Model(target).Where("id = ?", entityID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *entityRepository) FindUser(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
