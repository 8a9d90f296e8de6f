// Package input owns the raw OS input path: one blocking evdev reader
// per physical device, fanned into a single tagged channel the
// scheduler selects on. This path is separate from the devices' own
// HID report channel.
package input

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/system/hwdevices"
)

const eventQueueDepth = 256

// Event is one decoded input event, tagged with the originating
// device's category and index so the scheduler can attribute failures.
type Event struct {
	Class hwdevices.DeviceClass
	Index int

	Code  evdev.EvCode
	Value int32

	// Err is set instead of Code/Value when the reader lost its
	// device; the scheduler reacts by flagging the device failed.
	Err error
}

// reader pairs an open evdev handle with its registry coordinates.
type reader struct {
	class hwdevices.DeviceClass
	index int
	dev   *evdev.InputDevice
}

// Router owns the reader goroutines and the fan-in channel. Reader
// records stay index-aligned with the registry's per-category device
// collections; Remove keeps both in step.
type Router struct {
	mu      sync.Mutex
	readers []*reader
	events  chan Event

	lastInput atomic.Int64 // unix millis of the last observed event
}

func NewRouter() *Router {
	r := &Router{
		events: make(chan Event, eventQueueDepth),
	}
	r.lastInput.Store(time.Now().UnixMilli())
	return r
}

// Events returns the fan-in channel consumed by the scheduler.
func (r *Router) Events() <-chan Event {
	return r.events
}

// LastInput returns the time of the most recent input event across
// all devices; drives the AFK timer.
func (r *Router) LastInput() time.Time {
	return time.UnixMilli(r.lastInput.Load())
}

// AttachAll opens an evdev node for every keyboard and mouse in the
// registry, matched by vendor/product id, and spawns its reader. A
// device with no matching node gets no raw input but stays usable.
func (r *Router) AttachAll(registry *hwdevices.Registry) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		log.Printf("[input] cannot list input devices: %v\n", err)
		return
	}

	attach := func(class hwdevices.DeviceClass, idx int, info hwdevices.DeviceInfo) {
		for _, p := range paths {
			dev, err := evdev.Open(p.Path)
			if err != nil {
				continue
			}
			id, err := dev.InputID()
			if err != nil || id.Vendor != info.VendorID || id.Product != info.ProductID {
				dev.Close()
				continue
			}
			r.attach(class, idx, dev)
			log.Printf("[input] %s: raw input from %s\n", info, p.Path)
			return
		}
		log.Printf("[input] %s: no evdev node found\n", info)
	}

	for idx, dev := range registry.Keyboards() {
		attach(hwdevices.ClassKeyboard, idx, dev.Info())
	}
	for idx, dev := range registry.Mice() {
		attach(hwdevices.ClassMouse, idx, dev.Info())
	}
}

func (r *Router) attach(class hwdevices.DeviceClass, index int, dev *evdev.InputDevice) {
	rd := &reader{class: class, index: index, dev: dev}
	r.mu.Lock()
	r.readers = append(r.readers, rd)
	r.mu.Unlock()
	go r.read(rd)
}

// read blocks on the evdev handle until the device errors or is
// closed by Remove/CloseAll.
func (r *Router) read(rd *reader) {
	for {
		ev, err := rd.dev.ReadOne()
		if err != nil {
			r.mu.Lock()
			class, index, attached := rd.class, rd.index, r.contains(rd)
			r.mu.Unlock()
			if attached {
				r.events <- Event{
					Class: class,
					Index: index,
					Err:   errors.Wrap(err, "input: read"),
				}
			}
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		r.mu.Lock()
		class, index, attached := rd.class, rd.index, r.contains(rd)
		r.mu.Unlock()
		if !attached {
			return
		}
		r.lastInput.Store(time.Now().UnixMilli())
		select {
		case r.events <- Event{Class: class, Index: index, Code: ev.Code, Value: ev.Value}:
		default:
			// scheduler is behind; dropping key events is preferable
			// to blocking the reader
		}
	}
}

func (r *Router) contains(rd *reader) bool {
	for _, x := range r.readers {
		if x == rd {
			return true
		}
	}
	return false
}

// Remove drops the reader for the given registry coordinates and
// shifts the indices of later readers in the same category down by
// one, mirroring the registry's eviction so both collections stay
// index-aligned.
func (r *Router) Remove(class hwdevices.DeviceClass, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.readers[:0]
	for _, rd := range r.readers {
		if rd.class == class && rd.index == index {
			if rd.dev != nil {
				rd.dev.Close()
			}
			continue
		}
		if rd.class == class && rd.index > index {
			rd.index--
		}
		kept = append(kept, rd)
	}
	r.readers = kept
}

// CloseAll closes every reader; shutdown path.
func (r *Router) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rd := range r.readers {
		if rd.dev != nil {
			rd.dev.Close()
		}
	}
	r.readers = nil
}
