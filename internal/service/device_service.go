package service

import (
	"context"
	"errors"
	"time"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/repository"

	"github.com/google/uuid"
)

// Presence reports which devices hold an open live connection.
type Presence interface {
	ConnectedDevices() []string
	DeviceConnections(deviceID string) int
}

// DeviceService is the device registry.
type DeviceService struct {
	repo     repository.DeviceRepository
	presence Presence
	now      func() time.Time
}

func NewDeviceService(repo repository.DeviceRepository, presence Presence) *DeviceService {
	return &DeviceService{
		repo:     repo,
		presence: presence,
		now:      time.Now,
	}
}

// Register always creates a fresh device; names are not deduplicated.
func (s *DeviceService) Register(ctx context.Context, req *domain.RegisterDeviceRequest) (*domain.Device, error) {
	device := &domain.Device{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Class:     req.Class,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Create(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

func (s *DeviceService) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	device, err := s.repo.FindByID(ctx, deviceID)
	if errors.Is(err, repository.ErrDeviceNotFound) {
		return nil, ErrUnknownDevice
	}
	return device, err
}

func (s *DeviceService) List(ctx context.Context) ([]*domain.DeviceResponse, error) {
	devices, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.DeviceResponse, 0, len(devices))
	for _, d := range devices {
		conns := 0
		if s.presence != nil {
			conns = s.presence.DeviceConnections(d.ID)
		}
		responses = append(responses, &domain.DeviceResponse{
			ID:          d.ID,
			Name:        d.Name,
			Class:       d.Class,
			LastSyncAt:  d.LastSyncAt,
			CreatedAt:   d.CreatedAt,
			Connected:   conns > 0,
			Connections: conns,
		})
	}
	return responses, nil
}

// Touch moves the device's sync watermark to ts.
func (s *DeviceService) Touch(ctx context.Context, deviceID string, ts time.Time) error {
	err := s.repo.UpdateLastSync(ctx, deviceID, ts)
	if errors.Is(err, repository.ErrDeviceNotFound) {
		return ErrUnknownDevice
	}
	return err
}

// IsKnown reports whether deviceID is registered. Storage errors are returned
// as is so callers can tell them apart from an unknown device.
func (s *DeviceService) IsKnown(ctx context.Context, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, nil
	}
	_, err := s.repo.FindByID(ctx, deviceID)
	if errors.Is(err, repository.ErrDeviceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ConnectedDevices lists devices with at least one live connection.
func (s *DeviceService) ConnectedDevices() []string {
	if s.presence == nil {
		return []string{}
	}
	return s.presence.ConnectedDevices()
}
