// Package rpc defines the typed request/response channel protocol the
// external control transport speaks with the daemon, and the observer
// notification fan-out. The wire transport itself (session bus, web
// frontend) lives outside this repository; it only needs these types.
package rpc

import (
	"github.com/eruption-project/eruption-sub000/profiles"
	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// RequestType enumerates the control operations.
type RequestType int

const (
	RequestGetStatus RequestType = iota
	RequestSwitchProfile
	RequestSwitchSlot
	RequestReloadProfile
	RequestSetBrightness
	RequestSetHue
	RequestSetSaturation
	RequestSetLightness
	RequestSetParameter
	RequestAddColorScheme
	RequestRemoveColorScheme
	RequestEnterFailsafe
	RequestQuit
)

func (t RequestType) String() string {
	return [...]string{
		"GetStatus",
		"SwitchProfile",
		"SwitchSlot",
		"ReloadProfile",
		"SetBrightness",
		"SetHue",
		"SetSaturation",
		"SetLightness",
		"SetParameter",
		"AddColorScheme",
		"RemoveColorScheme",
		"EnterFailsafe",
		"Quit",
	}[t]
}

// Request is one control operation; the transport blocks on Response.
type Request struct {
	Type RequestType

	Profile    string // SwitchProfile: profile file path
	Slot       int    // SwitchSlot
	IntValue   int    // SetBrightness
	FloatValue float64

	Script     string // SetParameter
	Parameter  string
	ParamValue profiles.Value

	SchemeName string        // Add/RemoveColorScheme
	Scheme     []canvas.RGBA // AddColorScheme

	Response chan Response
}

// Response carries the outcome back to the transport.
type Response struct {
	Error  error
	Status *DaemonStatus
}

// ScriptStatus describes one fleet instance in a status reply.
type ScriptStatus struct {
	File        string
	Name        string
	Description string
	Tags        []string
	Failed      bool
}

// DaemonStatus is the GetStatus snapshot.
type DaemonStatus struct {
	ActiveProfile string
	ActiveSlot    int
	SlotNames     []string
	SlotProfiles  []string
	Brightness    int
	CanvasSize    int
	Scripts       []ScriptStatus
	Devices       []DeviceStatus
}

// DeviceStatus is one device's row in a status reply.
type DeviceStatus struct {
	Device string
	Status map[string]string
}
