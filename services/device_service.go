package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"roadside-monitor/be/clock"
	"roadside-monitor/be/models"
	"roadside-monitor/be/repository"

	"go.uber.org/zap"
)

const (
	DefaultImageLimit   = 10
	DefaultHistoryLimit = 10
	DefaultReadingLimit = 50
)

// UploadOptions configures how uploaded images are capped and addressed.
type UploadOptions struct {
	MaxBytes  int64
	URLPrefix string
}

// ImageUpload is one image submitted by a device.
type ImageUpload struct {
	FileName     string
	Size         int64 // -1 when unknown
	Reader       io.Reader
	Title        *string
	Content      *string
	LicensePlate *string
}

// DeviceService ingests readings and images and shapes device views.
// Hazard flags on the device row are a projection of the latest evaluation;
// the environment history stays the source of truth.
type DeviceService struct {
	store   repository.Store
	blobs   BlobStore
	cache   StatusCache
	clock   clock.Clock
	logger  *zap.Logger
	uploads UploadOptions
}

func NewDeviceService(store repository.Store, blobs BlobStore, cache StatusCache, clk clock.Clock, logger *zap.Logger, uploads UploadOptions) *DeviceService {
	if cache == nil {
		cache = NopStatusCache{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &DeviceService{
		store:   store,
		blobs:   blobs,
		cache:   cache,
		clock:   clk,
		logger:  logger,
		uploads: uploads,
	}
}

// ValidateReading checks that temperature, humidity and isRaining are present.
func ValidateReading(in models.ReadingInput) (Reading, error) {
	var missing []string
	if !in.Temperature.Set {
		missing = append(missing, "temperature")
	}
	if !in.Humidity.Set {
		missing = append(missing, "humidity")
	}
	if !in.IsRaining.Set {
		missing = append(missing, "isRaining")
	}
	if len(missing) > 0 {
		return Reading{}, models.NewValidationError("Missing required fields: %s", strings.Join(missing, ", "))
	}

	reading := Reading{
		Temperature: in.Temperature.Value,
		Humidity:    in.Humidity.Value,
		IsRaining:   in.IsRaining.Value,
	}
	if in.IsLandslide.Set {
		v := in.IsLandslide.Value
		reading.IsLandslide = &v
	}
	return reading, nil
}

// RecordReading stores a new reading and re-evaluates the device's hazard
// flags. Insert, window read and flag update share one transaction that
// holds the device row lock.
func (s *DeviceService) RecordReading(ctx context.Context, deviceID uint, in models.ReadingInput) (*models.ReadingResult, error) {
	reading, err := ValidateReading(in)
	if err != nil {
		return nil, err
	}

	var (
		result models.ReadingResult
		now    time.Time
	)
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.LockDevice(ctx, deviceID); err != nil {
			return err
		}
		// Read under the lock so evaluation times follow commit order.
		now = s.clock.Now()

		data := models.EnvironmentData{
			DeviceID:    deviceID,
			Temperature: reading.Temperature,
			Humidity:    reading.Humidity,
			IsRaining:   reading.IsRaining,
			CreatedAt:   now,
		}
		if err := tx.CreateEnvironmentData(ctx, &data); err != nil {
			return err
		}

		window, err := tx.EnvironmentSince(ctx, deviceID, WindowStart(now))
		if err != nil {
			return err
		}
		flags := Evaluate(reading, window)
		if err := tx.UpdateHazardFlags(ctx, deviceID, flags); err != nil {
			return err
		}

		result = models.ReadingResult{EnvironmentData: data, DeviceStatus: flags}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, deviceID, "Failed to process environment data")
	}

	s.logger.Info("Environment reading recorded",
		zap.Uint("device_id", deviceID),
		zap.Float64("temperature", reading.Temperature),
		zap.Float64("humidity", reading.Humidity),
		zap.Bool("is_raining", reading.IsRaining),
		zap.Bool("is_fogging", result.DeviceStatus.IsFogging),
		zap.Bool("is_road_slippery", result.DeviceStatus.IsRoadSlippery),
		zap.Bool("is_landslide", result.DeviceStatus.IsLandslide))

	s.cacheStatus(ctx, deviceID, result.DeviceStatus, now)
	return &result, nil
}

// EnvironmentHistory returns up to limit readings of a device, newest first.
func (s *DeviceService) EnvironmentHistory(ctx context.Context, deviceID uint, limit int) ([]models.EnvironmentData, error) {
	if limit <= 0 {
		limit = DefaultReadingLimit
	}
	if _, err := s.store.GetDevice(ctx, deviceID); err != nil {
		return nil, s.translate(err, deviceID, "Failed to fetch device")
	}

	rows, err := s.store.ListEnvironmentData(ctx, deviceID, limit)
	if err != nil {
		return nil, s.translate(err, deviceID, "Failed to fetch environment data")
	}
	if rows == nil {
		rows = []models.EnvironmentData{}
	}
	return rows, nil
}

func (s *DeviceService) GetDevice(ctx context.Context, deviceID uint, imageLimit, historyLimit int) (*models.DeviceView, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, s.translate(err, deviceID, "Failed to fetch device")
	}

	view, err := s.buildView(ctx, s.store, device, imageLimit, historyLimit)
	if err != nil {
		return nil, s.translate(err, deviceID, "Failed to fetch device")
	}
	return view, nil
}

// ListDevices shapes every device like GetDevice. There is no pagination.
func (s *DeviceService) ListDevices(ctx context.Context, imageLimit, historyLimit int) ([]models.DeviceView, error) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, models.NewStorageError("Failed to fetch devices", err)
	}

	views := make([]models.DeviceView, 0, len(devices))
	for i := range devices {
		view, err := s.buildView(ctx, s.store, &devices[i], imageLimit, historyLimit)
		if err != nil {
			return nil, models.NewStorageError("Failed to fetch devices", err)
		}
		views = append(views, *view)
	}
	return views, nil
}

// CreateDevice creates a device with its optional initial reading and
// images in one transaction.
func (s *DeviceService) CreateDevice(ctx context.Context, in models.CreateDeviceInput) (*models.DeviceView, error) {
	var missing []string
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		missing = append(missing, "title")
	}
	if !in.Lat.Set {
		missing = append(missing, "lat")
	}
	if !in.Lng.Set {
		missing = append(missing, "lng")
	}
	if len(missing) > 0 {
		return nil, models.NewValidationError("Missing required fields: %s", strings.Join(missing, ", "))
	}
	if err := validateCoordinates(in.Lat.Ptr(), in.Lng.Ptr()); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	createdAt := now
	if in.CreatedAt != nil {
		createdAt = *in.CreatedAt
	}

	var (
		view      *models.DeviceView
		evaluated *models.HazardFlags
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		device := &models.Device{
			Title:       strings.TrimSpace(*in.Title),
			Description: in.Description,
			Lat:         in.Lat.Value,
			Lng:         in.Lng.Value,
			CreatedAt:   createdAt,
		}
		if err := tx.CreateDevice(ctx, device); err != nil {
			return err
		}

		if env := in.Environment; env != nil && (env.Temperature.Set || env.Humidity.Set) {
			data := models.EnvironmentData{
				DeviceID:    device.ID,
				Temperature: env.Temperature.Value,
				Humidity:    env.Humidity.Value,
				IsRaining:   env.IsRaining.Value,
				CreatedAt:   now,
			}
			if env.CreatedAt != nil {
				data.CreatedAt = *env.CreatedAt
			}
			if err := tx.CreateEnvironmentData(ctx, &data); err != nil {
				return err
			}

			window, err := tx.EnvironmentSince(ctx, device.ID, WindowStart(now))
			if err != nil {
				return err
			}
			initial := Reading{Temperature: data.Temperature, Humidity: data.Humidity, IsRaining: data.IsRaining}
			if env.IsLandslide.Set {
				v := env.IsLandslide.Value
				initial.IsLandslide = &v
			}
			flags := Evaluate(initial, window)
			if err := tx.UpdateHazardFlags(ctx, device.ID, flags); err != nil {
				return err
			}
			device.ApplyFlags(flags)
			evaluated = &flags
		}

		for _, img := range in.Images {
			if strings.TrimSpace(img.URL) == "" {
				continue
			}
			image := models.Image{
				DeviceID:     device.ID,
				URL:          img.URL,
				Title:        nonEmpty(img.Title),
				Content:      nonEmpty(img.Content),
				LicensePlate: nonEmpty(img.LicensePlate),
				CreatedAt:    now,
			}
			if img.CreatedAt != nil {
				image.CreatedAt = *img.CreatedAt
			}
			if err := tx.CreateImage(ctx, &image); err != nil {
				return err
			}
		}

		var err error
		view, err = s.buildView(ctx, tx, device, DefaultImageLimit, DefaultHistoryLimit)
		return err
	})
	if err != nil {
		return nil, s.translate(err, 0, "Failed to create device")
	}

	s.logger.Info("Device created",
		zap.Uint("device_id", view.ID),
		zap.String("title", view.Title),
		zap.Int("images", len(view.Images)),
		zap.Bool("initial_reading", evaluated != nil))

	if evaluated != nil {
		s.cacheStatus(ctx, view.ID, *evaluated, now)
	}
	return view, nil
}

// UpdateDevice applies a partial update. Omitted fields are left untouched;
// an empty description clears it.
func (s *DeviceService) UpdateDevice(ctx context.Context, deviceID uint, in models.UpdateDeviceInput) (*models.DeviceView, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, models.NewValidationError("title must not be empty")
	}
	if err := validateCoordinates(in.Lat.Ptr(), in.Lng.Ptr()); err != nil {
		return nil, err
	}

	patch := in.Patch()
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if err := s.store.UpdateDevice(ctx, deviceID, patch); err != nil {
		return nil, s.translate(err, deviceID, "Failed to update device")
	}

	if !patch.IsEmpty() {
		s.logger.Info("Device updated", zap.Uint("device_id", deviceID))
	}
	return s.GetDevice(ctx, deviceID, DefaultImageLimit, DefaultHistoryLimit)
}

// DeleteDevice removes the device, its readings and images, then drops the
// stored image files. Deleting a missing device is a NotFoundError.
// The image list is taken under the device row lock, so an upload racing
// the delete either lands in the list or fails its insert.
func (s *DeviceService) DeleteDevice(ctx context.Context, deviceID uint) error {
	var images []models.Image
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.LockDevice(ctx, deviceID); err != nil {
			return err
		}
		var err error
		images, err = tx.ListImages(ctx, deviceID, -1)
		if err != nil {
			return err
		}
		return tx.DeleteDevice(ctx, deviceID)
	})
	if err != nil {
		return s.translate(err, deviceID, "Failed to delete device")
	}

	if err := s.cache.Delete(ctx, deviceID); err != nil {
		s.logger.Warn("Failed to evict device status", zap.Uint("device_id", deviceID), zap.Error(err))
	}
	for _, img := range images {
		if isExternalRef(img.URL) || s.blobs == nil {
			continue
		}
		if err := s.blobs.Delete(context.WithoutCancel(ctx), img.URL); err != nil {
			s.logger.Warn("Failed to delete image file", zap.String("ref", img.URL), zap.Error(err))
		}
	}

	s.logger.Info("Device deleted", zap.Uint("device_id", deviceID), zap.Int("images", len(images)))
	return nil
}

// RecordImage stores an uploaded image for a device and marks the device as
// having uploaded now. The file is written before the Image row; if the row
// cannot be written the file is removed again. A failed removal leaves an
// unreferenced file behind, never a row pointing at a missing file.
func (s *DeviceService) RecordImage(ctx context.Context, deviceID uint, upload ImageUpload) (*models.ImageView, error) {
	if upload.Reader == nil {
		return nil, models.NewValidationError("No file uploaded")
	}
	if s.uploads.MaxBytes > 0 && upload.Size > s.uploads.MaxBytes {
		return nil, models.NewPayloadTooLargeError("File too large (max %d bytes)", s.uploads.MaxBytes)
	}
	if _, err := s.store.GetDevice(ctx, deviceID); err != nil {
		return nil, s.translate(err, deviceID, "Failed to fetch device")
	}

	ref, _, err := s.blobs.Save(ctx, upload.FileName, newCapReader(upload.Reader, s.uploads.MaxBytes))
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			return nil, models.NewPayloadTooLargeError("File too large (max %d bytes)", s.uploads.MaxBytes)
		}
		return nil, models.NewStorageError("Failed to store image", err)
	}

	now := s.clock.Now()
	image := models.Image{
		DeviceID:     deviceID,
		URL:          ref,
		Title:        nonEmpty(upload.Title),
		Content:      nonEmpty(upload.Content),
		LicensePlate: nonEmpty(upload.LicensePlate),
		CreatedAt:    now,
	}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.CreateImage(ctx, &image); err != nil {
			return err
		}
		return tx.TouchLastUpload(ctx, deviceID, now)
	})
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			s.logger.Error("Orphaned image file after failed insert",
				zap.String("ref", ref), zap.Error(delErr))
		}
		return nil, s.translate(err, deviceID, "Failed to save image")
	}

	s.logger.Info("Image recorded",
		zap.Uint("device_id", deviceID),
		zap.String("ref", ref))

	view := s.imageView(image)
	return &view, nil
}

// Status returns the latest hazard snapshot, from the cache when possible.
func (s *DeviceService) Status(ctx context.Context, deviceID uint) (*models.DeviceStatus, error) {
	cached, err := s.cache.Get(ctx, deviceID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrStatusMiss) {
		s.logger.Warn("Status cache read failed", zap.Uint("device_id", deviceID), zap.Error(err))
	}

	// The reading is read before the row: flags can only be as new as or
	// newer than the timestamp they are cached under.
	latest, err := s.store.ListEnvironmentData(ctx, deviceID, 1)
	if err != nil {
		return nil, s.translate(err, deviceID, "Failed to fetch device")
	}
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, s.translate(err, deviceID, "Failed to fetch device")
	}

	status := models.DeviceStatus{
		DeviceID:    deviceID,
		Flags:       device.Flags(),
		EvaluatedAt: device.CreatedAt,
	}
	if len(latest) > 0 {
		status.EvaluatedAt = latest[0].CreatedAt
	}
	if err := s.cache.Set(ctx, status); err != nil {
		s.logger.Warn("Status cache write failed", zap.Uint("device_id", deviceID), zap.Error(err))
	}
	return &status, nil
}

// IsDeviceActive reports liveness from the stored lastUploadAt.
func (s *DeviceService) IsDeviceActive(ctx context.Context, deviceID uint) (bool, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return false, s.translate(err, deviceID, "Failed to fetch device")
	}
	return IsActive(device.LastUploadAt, s.clock.Now()), nil
}

func (s *DeviceService) buildView(ctx context.Context, store repository.Store, device *models.Device, imageLimit, historyLimit int) (*models.DeviceView, error) {
	if imageLimit <= 0 {
		imageLimit = DefaultImageLimit
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	images, err := store.ListImages(ctx, device.ID, imageLimit)
	if err != nil {
		return nil, err
	}
	history, err := store.ListEnvironmentData(ctx, device.ID, historyLimit)
	if err != nil {
		return nil, err
	}

	view := &models.DeviceView{
		ID:              device.ID,
		Title:           device.Title,
		Description:     device.Description,
		Lat:             device.Lat,
		Lng:             device.Lng,
		CreatedAt:       device.CreatedAt,
		LastUploadAt:    device.LastUploadAt,
		IsFogging:       device.IsFogging,
		IsRoadSlippery:  device.IsRoadSlippery,
		IsLandslide:     device.IsLandslide,
		IsActive:        IsActive(device.LastUploadAt, s.clock.Now()),
		Images:          make([]models.ImageView, 0, len(images)),
		EnvironmentData: make([]models.EnvironmentData, 0, len(history)),
	}
	for _, img := range images {
		if img.LicensePlate != nil && *img.LicensePlate != "" {
			view.HasDetectedVehicles = true
		}
		view.Images = append(view.Images, s.imageView(img))
	}
	view.EnvironmentData = append(view.EnvironmentData, history...)
	if len(history) > 0 {
		latest := history[0]
		view.LatestEnvironment = &latest
	}
	return view, nil
}

func (s *DeviceService) imageView(img models.Image) models.ImageView {
	return models.ImageView{
		ID:           img.ID,
		URL:          ImageURL(s.uploads.URLPrefix, img.URL),
		Title:        img.Title,
		Content:      img.Content,
		LicensePlate: img.LicensePlate,
		CreatedAt:    img.CreatedAt,
	}
}

func (s *DeviceService) cacheStatus(ctx context.Context, deviceID uint, flags models.HazardFlags, at time.Time) {
	status := models.DeviceStatus{DeviceID: deviceID, Flags: flags, EvaluatedAt: at}
	if err := s.cache.Set(ctx, status); err != nil {
		s.logger.Warn("Status cache write failed", zap.Uint("device_id", deviceID), zap.Error(err))
	}
}

// translate maps repository failures onto the service error kinds.
func (s *DeviceService) translate(err error, deviceID uint, message string) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return models.NewNotFoundError("Device %d not found", deviceID)
	}
	return models.NewStorageError(message, err)
}

func validateCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return models.NewValidationError("lat must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return models.NewValidationError("lng must be between -180 and 180")
	}
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// ImageURL turns a stored reference into a client URL. Absolute URLs and
// rooted paths are returned unchanged.
func ImageURL(prefix, ref string) string {
	if isExternalRef(ref) || strings.HasPrefix(ref, "/") {
		return ref
	}
	return strings.TrimSuffix(prefix, "/") + "/" + ref
}

func isExternalRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
