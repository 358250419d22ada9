package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"roadside-monitor/be/models"
)

// MemoryStore keeps everything in process memory. It backs DB_DRIVER=memory
// and the service and handler tests.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	devices     map[uint]models.Device
	environment []models.EnvironmentData
	images      []models.Image
	nextDevice  uint
	nextEnv     uint
	nextImage   uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{devices: make(map[uint]models.Device)}}
}

func (s *MemoryStore) CreateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.nextDevice++
	device.ID = s.state.nextDevice
	stored := *device
	stored.Images = nil
	stored.EnvironmentData = nil
	s.state.devices[device.ID] = stored
	return nil
}

func (s *MemoryStore) GetDevice(ctx context.Context, id uint) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.state.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &device, nil
}

// LockDevice is GetDevice; transactions already hold the store lock.
func (s *MemoryStore) LockDevice(ctx context.Context, id uint) (*models.Device, error) {
	return s.GetDevice(ctx, id)
}

func (s *MemoryStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make([]models.Device, 0, len(s.state.devices))
	for _, d := range s.state.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (s *MemoryStore) UpdateDevice(ctx context.Context, id uint, patch models.DevicePatch) error {
	return s.mutateDevice(id, func(d *models.Device) {
		if patch.Title != nil {
			d.Title = *patch.Title
		}
		if patch.Description != nil {
			desc := *patch.Description
			d.Description = &desc
		}
		if patch.Lat != nil {
			d.Lat = *patch.Lat
		}
		if patch.Lng != nil {
			d.Lng = *patch.Lng
		}
	})
}

func (s *MemoryStore) UpdateHazardFlags(ctx context.Context, id uint, flags models.HazardFlags) error {
	return s.mutateDevice(id, func(d *models.Device) {
		d.ApplyFlags(flags)
	})
}

func (s *MemoryStore) TouchLastUpload(ctx context.Context, id uint, at time.Time) error {
	return s.mutateDevice(id, func(d *models.Device) {
		t := at
		d.LastUploadAt = &t
	})
}

func (s *MemoryStore) DeleteDevice(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.devices[id]; !ok {
		return ErrNotFound
	}
	delete(s.state.devices, id)

	env := s.state.environment[:0]
	for _, e := range s.state.environment {
		if e.DeviceID != id {
			env = append(env, e)
		}
	}
	s.state.environment = env

	images := s.state.images[:0]
	for _, img := range s.state.images {
		if img.DeviceID != id {
			images = append(images, img)
		}
	}
	s.state.images = images
	return nil
}

func (s *MemoryStore) CreateEnvironmentData(ctx context.Context, data *models.EnvironmentData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.devices[data.DeviceID]; !ok {
		return ErrNotFound
	}
	s.state.nextEnv++
	data.ID = s.state.nextEnv
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	s.state.environment = append(s.state.environment, *data)
	return nil
}

func (s *MemoryStore) ListEnvironmentData(ctx context.Context, deviceID uint, limit int) ([]models.EnvironmentData, error) {
	return s.environmentWhere(deviceID, limit, func(models.EnvironmentData) bool { return true }), nil
}

func (s *MemoryStore) EnvironmentSince(ctx context.Context, deviceID uint, since time.Time) ([]models.EnvironmentData, error) {
	return s.environmentWhere(deviceID, -1, func(e models.EnvironmentData) bool {
		return !e.CreatedAt.Before(since)
	}), nil
}

func (s *MemoryStore) CreateImage(ctx context.Context, image *models.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.devices[image.DeviceID]; !ok {
		return ErrNotFound
	}
	s.state.nextImage++
	image.ID = s.state.nextImage
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now()
	}
	s.state.images = append(s.state.images, *image)
	return nil
}

func (s *MemoryStore) ListImages(ctx context.Context, deviceID uint, limit int) ([]models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []models.Image
	for _, img := range s.state.images {
		if img.DeviceID == deviceID {
			rows = append(rows, img)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return newerFirst(rows[i].CreatedAt, rows[i].ID, rows[j].CreatedAt, rows[j].ID)
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Transaction runs fn against a private copy of the state and publishes it
// only when fn succeeds. Other callers wait until the transaction finishes.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemoryStore{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) mutateDevice(id uint, fn func(d *models.Device)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.state.devices[id]
	if !ok {
		return ErrNotFound
	}
	fn(&device)
	s.state.devices[id] = device
	return nil
}

func (s *MemoryStore) environmentWhere(deviceID uint, limit int, keep func(models.EnvironmentData) bool) []models.EnvironmentData {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []models.EnvironmentData
	for _, e := range s.state.environment {
		if e.DeviceID == deviceID && keep(e) {
			rows = append(rows, e)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return newerFirst(rows[i].CreatedAt, rows[i].ID, rows[j].CreatedAt, rows[j].ID)
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func (st memoryState) clone() memoryState {
	out := st
	out.devices = make(map[uint]models.Device, len(st.devices))
	for id, d := range st.devices {
		out.devices[id] = d
	}
	out.environment = append([]models.EnvironmentData(nil), st.environment...)
	out.images = append([]models.Image(nil), st.images...)
	return out
}

func newerFirst(at time.Time, id uint, otherAt time.Time, otherID uint) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id > otherID
}
