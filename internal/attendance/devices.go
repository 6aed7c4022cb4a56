package attendance

import (
	"context"
	"strings"

	"staffattend/internal/apperrors"
)

// Devices manages capture-station registration and refresh tokens.
type Devices struct {
	store DeviceStore
}

// NewDevices creates a device registry.
func NewDevices(store DeviceStore) *Devices {
	return &Devices{store: store}
}

// Register validates and persists a device id.
func (d *Devices) Register(ctx context.Context, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return apperrors.Validation("device id required")
	}
	if len(deviceID) > 128 {
		return apperrors.Validation("device id too long")
	}
	return d.store.UpsertDevice(ctx, deviceID)
}

// Store returns the underlying device store.
func (d *Devices) Store() DeviceStore {
	return d.store
}
