package services

import (
	"context"
	"testing"
	"time"

	"roadside-monitor/be/clock"
	"roadside-monitor/be/models"
	"roadside-monitor/be/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGormService(t *testing.T) (*DeviceService, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	svc := NewDeviceService(repository.NewGormStore(db), nil, nil, clock.NewFake(testStart), zap.NewNop(), UploadOptions{})
	return svc, mock
}

func TestRecordReading_GormStatementOrder(t *testing.T) {
	svc, mock := newGormService(t)

	deviceCols := []string{"id", "title", "lat", "lng", "is_fogging", "is_road_slippery", "is_landslide", "created_at"}
	envCols := []string{"id", "device_id", "temperature", "humidity", "is_raining", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE "devices"."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(deviceCols).
			AddRow(1, "Camera A", 21.0, 105.8, false, false, false, testStart.Add(-time.Hour)))
	mock.ExpectQuery(`INSERT INTO "environment_data" .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectQuery(`SELECT \* FROM "environment_data" WHERE device_id = \$1 AND created_at >= \$2 ORDER BY created_at desc, id desc`).
		WithArgs(1, WindowStart(testStart)).
		WillReturnRows(sqlmock.NewRows(envCols).
			AddRow(12, 1, 18.0, 96.0, true, testStart).
			AddRow(11, 1, 18.5, 92.0, true, testStart.Add(-5*time.Minute)))
	mock.ExpectExec(`UPDATE "devices" SET .* WHERE id = \$\d`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.RecordReading(context.Background(), 1, reading(18, 96, true))
	require.NoError(t, err)

	window := []models.EnvironmentData{
		{ID: 12, DeviceID: 1, Temperature: 18, Humidity: 96, IsRaining: true, CreatedAt: testStart},
		{ID: 11, DeviceID: 1, Temperature: 18.5, Humidity: 92, IsRaining: true, CreatedAt: testStart.Add(-5 * time.Minute)},
	}
	expected := Evaluate(Reading{Temperature: 18, Humidity: 96, IsRaining: true}, window)

	assert.Equal(t, uint(12), result.EnvironmentData.ID)
	assert.True(t, testStart.Equal(result.EnvironmentData.CreatedAt))
	assert.Equal(t, expected, result.DeviceStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReading_GormUnknownDeviceRollsBack(t *testing.T) {
	svc, mock := newGormService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE "devices"."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))
	mock.ExpectRollback()

	_, err := svc.RecordReading(context.Background(), 99, reading(18, 96, true))

	require.Error(t, err)
	assert.Equal(t, models.ErrorKindNotFound, models.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDevice_GormListsImagesUnderLock(t *testing.T) {
	svc, mock := newGormService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE "devices"."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(1, "Camera A"))
	mock.ExpectQuery(`SELECT \* FROM "images" WHERE device_id = \$1 ORDER BY created_at desc, id desc$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "url", "created_at"}).
			AddRow(4, 1, "https://cdn.example.com/a.jpg", testStart))
	mock.ExpectExec(`SAVEPOINT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "environment_data" WHERE device_id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM "images" WHERE device_id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "devices" WHERE "devices"."id" = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.DeleteDevice(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}
