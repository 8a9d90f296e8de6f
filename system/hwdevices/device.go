package hwdevices

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// DeviceClass partitions bound devices into the registry's categories.
type DeviceClass int

const (
	ClassKeyboard DeviceClass = iota
	ClassMouse
	ClassMisc
)

func (c DeviceClass) String() string {
	return [...]string{"keyboard", "mouse", "misc"}[c]
}

// Device error taxonomy. All of these are non-fatal individually: they
// mark the owning device failed and surface as log entries; the
// scheduler's per-iteration check escalates.
var (
	ErrNotBound          = errors.New("hwdevices: device not bound")
	ErrNotOpened         = errors.New("hwdevices: device not opened")
	ErrNotInitialized    = errors.New("hwdevices: device not initialized")
	ErrInvalidStatusCode = errors.New("hwdevices: invalid status code")
	ErrInvalidResult     = errors.New("hwdevices: invalid result")
	ErrWrite             = errors.New("hwdevices: write error")
	ErrShortWrite        = errors.New("hwdevices: short write")
)

// DeviceInfo identifies a bound device.
type DeviceInfo struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
	Make      string
	Model     string
	Class     DeviceClass
	LEDCount  int
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s %s (%04x:%04x)", i.Make, i.Model, i.VendorID, i.ProductID)
}

// OverrideKey returns the `vendor:product:serial` key used for
// per-device brightness overrides in the persisted state.
func (i DeviceInfo) OverrideKey() string {
	return fmt.Sprintf("%04x:%04x:%s", i.VendorID, i.ProductID, i.Serial)
}

// HidEventKind discriminates decoded HID reports.
type HidEventKind int

const (
	HidKeyDown HidEventKind = iota
	HidKeyUp
	HidStatusReport
)

// HidEvent is one decoded HID report from the device's control
// channel. This path is distinct from the raw evdev input channel: it
// carries device-specific key indices and status updates.
type HidEvent struct {
	Kind     HidEventKind
	KeyIndex uint8
	Status   Status
}

// Status is the small per-device status record produced by polling
// (battery level, signal strength, or plain ok/failed).
type Status map[string]string

// Equal compares two status snapshots; used frame-to-frame to decide
// whether to notify observers.
func (s Status) Equal(other Status) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if other[k] != v {
			return false
		}
	}
	return true
}

// Device is the uniform capability the core needs from a physical
// LED device. Per-model wire codecs implement it; the core never sees
// byte sequences.
type Device interface {
	Info() DeviceInfo
	Class() DeviceClass

	// Open acquires the control and LED HID handles.
	Open() error
	// CloseAll releases every handle. Safe to call on a failed device.
	CloseAll() error
	// SendInitSequence performs the device-specific handshake. Must be
	// called after Open and before the first LED frame.
	SendInitSequence() error
	// SendLEDFrame writes one frame for this device's zone. The slice
	// length must equal Info().LEDCount; a short write is an error.
	SendLEDFrame([]canvas.RGBA) error
	// PendingEvents drains decoded HID reports without blocking.
	PendingEvents() []HidEvent
	// Status polls the device status channel.
	Status() (Status, error)

	// Fail latches the device failed; the registry evicts it on the
	// scheduler's next pass.
	Fail()
	HasFailed() bool

	Zone() canvas.Zone
	SetZone(canvas.Zone)
}
