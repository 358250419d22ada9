package models

import "time"

// EnvironmentData is one immutable sensor reading reported by a device.
type EnvironmentData struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	DeviceID    uint      `json:"deviceId" gorm:"not null;index:idx_environment_device_created,priority:1"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	IsRaining   bool      `json:"isRaining" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"createdAt" gorm:"index:idx_environment_device_created,priority:2"`
}

func (EnvironmentData) TableName() string {
	return "environment_data"
}
