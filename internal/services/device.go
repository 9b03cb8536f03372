package services

import (
	"context"
	"errors"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/google/uuid"
)

// ErrDeviceNotFound rejects a whole pull or push before any processing. An
// unknown, inactive, or foreign-owned device id are deliberately
// indistinguishable to the caller.
var ErrDeviceNotFound = errors.New("device not found")

func requireDevice(ctx context.Context, devices repositories.DeviceRepository, userID, deviceID uuid.UUID) (*models.Device, error) {
	device, err := devices.GetByID(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	if !device.CanSync(userID) {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}
