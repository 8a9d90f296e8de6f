package rpc

import (
	"sync"

	"github.com/eruption-project/eruption-sub000/system/hwdevices"
)

// EventType enumerates the observer notifications the daemon emits.
type EventType int

const (
	ActiveProfileChanged EventType = iota
	ActiveSlotChanged
	BrightnessChanged
	HueChanged
	SaturationChanged
	LightnessChanged
	DeviceStatusChanged
	DeviceHotplug
	ColorSchemesChanged
)

func (e EventType) String() string {
	return [...]string{
		"ActiveProfileChanged",
		"ActiveSlotChanged",
		"BrightnessChanged",
		"HueChanged",
		"SaturationChanged",
		"LightnessChanged",
		"DeviceStatusChanged",
		"DeviceHotplug",
		"ColorSchemesChanged",
	}[e]
}

// Notification is one observer event.
type Notification struct {
	Type EventType

	Profile    string
	Slot       int
	IntValue   int
	FloatValue float64

	Device  string
	Status  hwdevices.Status
	Removed bool // DeviceHotplug: device left rather than arrived
}

// Broadcaster fans notifications out to subscribed observers. Publish
// never blocks: a subscriber that stops draining loses events rather
// than stalling the render path.
type Broadcaster struct {
	mu   sync.Mutex
	subs []chan Notification
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers an observer channel.
func (b *Broadcaster) Subscribe() <-chan Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Notification, 32)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the notification to every subscriber that has
// queue room.
func (b *Broadcaster) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
