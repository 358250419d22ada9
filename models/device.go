package models

import (
	"time"
)

type Device struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	Title          string     `json:"title" gorm:"not null"`
	Description    *string    `json:"description"`
	Lat            float64    `json:"lat" gorm:"not null"`
	Lng            float64    `json:"lng" gorm:"not null"`
	LastUploadAt   *time.Time `json:"lastUploadAt"`
	IsFogging      bool       `json:"isFogging" gorm:"not null;default:false"`
	IsRoadSlippery bool       `json:"isRoadSlippery" gorm:"not null;default:false"`
	IsLandslide    bool       `json:"isLandslide" gorm:"not null;default:false"`
	CreatedAt      time.Time  `json:"createdAt"`

	Images          []Image           `json:"images,omitempty" gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE"`
	EnvironmentData []EnvironmentData `json:"environmentData,omitempty" gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE"`
}

// HazardFlags is the derived status persisted onto a Device after each evaluation.
type HazardFlags struct {
	IsFogging      bool `json:"isFogging"`
	IsRoadSlippery bool `json:"isRoadSlippery"`
	IsLandslide    bool `json:"isLandslide"`
}

func (d *Device) Flags() HazardFlags {
	return HazardFlags{
		IsFogging:      d.IsFogging,
		IsRoadSlippery: d.IsRoadSlippery,
		IsLandslide:    d.IsLandslide,
	}
}

func (d *Device) ApplyFlags(f HazardFlags) {
	d.IsFogging = f.IsFogging
	d.IsRoadSlippery = f.IsRoadSlippery
	d.IsLandslide = f.IsLandslide
}

// DevicePatch carries a partial device update. Nil fields are left untouched.
type DevicePatch struct {
	Title       *string
	Description *string
	Lat         *float64
	Lng         *float64
}

func (p DevicePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Lat == nil && p.Lng == nil
}
