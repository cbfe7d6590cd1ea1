package repository

import (
	"testing"

	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityRepository_Exists(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	repo := NewEntityRepository(testDB)

	driver := &model.Driver{Name: "Driver", LicenseNumber: "DL-1"}
	testDB.Create(driver)
	vehicle := &model.Vehicle{PlateNumber: "ABC-1234"}
	testDB.Create(vehicle)
	user := &model.User{Email: "user@example.com", Name: "User"}
	testDB.Create(user)

	exists, err := repo.Exists(model.EntityDriver, driver.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(model.EntityVehicle, vehicle.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(model.EntityUser, user.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(model.EntityDriver, driver.ID+100)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Exists("warehouse", 1)
	assert.Error(t, err)
}

func TestEntityRepository_FindUser(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	repo := NewEntityRepository(testDB)

	user := &model.User{Email: "reviewer@example.com", Name: "Reviewer", Role: model.RoleReviewer}
	testDB.Create(user)

	found, err := repo.FindUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)

	_, err = repo.FindUser(user.ID + 100)
	assert.Error(t, err)
}
