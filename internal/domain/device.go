package domain

import "time"

type DeviceClass string

const (
	DeviceClassDesktop DeviceClass = "desktop"
	DeviceClassMobile  DeviceClass = "mobile"
	DeviceClassOther   DeviceClass = "other"
)

type Device struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Class      DeviceClass `json:"class"`
	LastSyncAt *time.Time  `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

type RegisterDeviceRequest struct {
	Name  string      `json:"name" validate:"required,min=1,max=200"`
	Class DeviceClass `json:"class" validate:"required,oneof=desktop mobile other"`
}

type DeviceResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Class       DeviceClass `json:"class"`
	LastSyncAt  *time.Time  `json:"last_sync_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	Connected   bool        `json:"connected"`
	Connections int         `json:"connections"`
}

// DeviceRegistration is returned once, at registration. Token is bound to the
// device and authenticates its live channel.
type DeviceRegistration struct {
	Device *Device `json:"device"`
	Token  string  `json:"token"`
}
