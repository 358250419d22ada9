package models

import "time"

// DeviceView is the device shape served to map clients.
type DeviceView struct {
	ID                  uint              `json:"id"`
	Title               string            `json:"title"`
	Description         *string           `json:"description"`
	Lat                 float64           `json:"lat"`
	Lng                 float64           `json:"lng"`
	CreatedAt           time.Time         `json:"createdAt"`
	LastUploadAt        *time.Time        `json:"lastUploadAt"`
	IsFogging           bool              `json:"isFogging"`
	IsRoadSlippery      bool              `json:"isRoadSlippery"`
	IsLandslide         bool              `json:"isLandslide"`
	IsActive            bool              `json:"isActive"`
	HasDetectedVehicles bool              `json:"hasDetectedVehicles"`
	Images              []ImageView       `json:"images"`
	EnvironmentData     []EnvironmentData `json:"environmentData"`
	LatestEnvironment   *EnvironmentData  `json:"latestEnvironment"`
}

type ImageView struct {
	ID           uint      `json:"id"`
	URL          string    `json:"url"`
	Title        *string   `json:"title"`
	Content      *string   `json:"content"`
	LicensePlate *string   `json:"licensePlate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ReadingResult is returned after a reading has been stored and evaluated.
type ReadingResult struct {
	EnvironmentData EnvironmentData `json:"environmentData"`
	DeviceStatus    HazardFlags     `json:"deviceStatus"`
}

// DeviceStatus is the cached hazard snapshot of a device.
type DeviceStatus struct {
	DeviceID    uint        `json:"deviceId"`
	Flags       HazardFlags `json:"flags"`
	EvaluatedAt time.Time   `json:"evaluatedAt"`
}
