package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexFloat decodes a JSON number or numeric string and records whether the
// field was present. A JSON null counts as absent.
type FlexFloat struct {
	Value float64
	Set   bool
}

func Float(v float64) FlexFloat {
	return FlexFloat{Value: v, Set: true}
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	} else if raw == "true" || raw == "false" || strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return fmt.Errorf("expected a number, got %s", raw)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%q is not a valid number", raw)
	}
	f.Value = v
	f.Set = true
	return nil
}

func (f FlexFloat) Ptr() *float64 {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// FlexBool decodes a JSON boolean, a "true"/"false" string or a number
// (non-zero is true) and records whether the field was present.
type FlexBool struct {
	Value bool
	Set   bool
}

func Bool(v bool) FlexBool {
	return FlexBool{Value: v, Set: true}
}

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	switch raw {
	case "null":
		return nil
	case "true":
		b.Value, b.Set = true, true
		return nil
	case "false":
		b.Value, b.Set = false, true
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%q is not a valid boolean", s)
		}
		b.Value, b.Set = v, true
		return nil
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s is not a valid boolean", raw)
	}
	b.Value, b.Set = n != 0, true
	return nil
}

// ReadingInput is the body of a reading submission.
type ReadingInput struct {
	Temperature FlexFloat `json:"temperature"`
	Humidity    FlexFloat `json:"humidity"`
	IsRaining   FlexBool  `json:"isRaining"`
	IsLandslide FlexBool  `json:"isLandslide"`
}

type InitialReadingInput struct {
	Temperature FlexFloat  `json:"temperature"`
	Humidity    FlexFloat  `json:"humidity"`
	IsRaining   FlexBool   `json:"isRaining"`
	IsLandslide FlexBool   `json:"isLandslide"`
	CreatedAt   *time.Time `json:"createdAt"`
}

type InitialImageInput struct {
	URL          string     `json:"url"`
	Title        *string    `json:"title"`
	Content      *string    `json:"content"`
	LicensePlate *string    `json:"licensePlate"`
	CreatedAt    *time.Time `json:"createdAt"`
}

type CreateDeviceInput struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Lat         FlexFloat            `json:"lat"`
	Lng         FlexFloat            `json:"lng"`
	CreatedAt   *time.Time           `json:"createdAt"`
	Environment *InitialReadingInput `json:"environment"`
	Images      []InitialImageInput  `json:"images"`
}

type UpdateDeviceInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Lat         FlexFloat `json:"lat"`
	Lng         FlexFloat `json:"lng"`
}

func (in UpdateDeviceInput) Patch() DevicePatch {
	return DevicePatch{
		Title:       in.Title,
		Description: in.Description,
		Lat:         in.Lat.Ptr(),
		Lng:         in.Lng.Ptr(),
	}
}
