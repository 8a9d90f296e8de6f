package hwdevices

import (
	"fmt"
	"log"
	"sync"

	"github.com/karalabe/usb"
	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// initWorkers bounds the parallel device-init pool. Hardware handshake
// latency dominates startup, so devices within a category initialize
// concurrently.
const initWorkers = 4

// Registry owns the set of bound devices per category and allocates
// their canvas zones. Only the scheduler mutates it; readers take the
// lock briefly and never hold it across device I/O.
type Registry struct {
	mu        sync.RWMutex
	keyboards []Device
	mice      []Device
	misc      []Device
}

// Removed describes one evicted device, reported to observers as a
// hot-plug removal.
type Removed struct {
	Info  DeviceInfo
	Class DeviceClass
	// Index is the device's position within its category before
	// eviction; the input router drops the matching channel entry so
	// the two collections stay index-aligned.
	Index int
}

// Probe enumerates the HID bus and binds every supported device,
// unopened. Finding nothing is reported but is not fatal: hot-plug may
// bring devices later and the daemon can still serve its interfaces.
func Probe(dryRun bool) (*Registry, error) {
	r := &Registry{}

	if dryRun {
		r.keyboards = append(r.keyboards, newDryDevice(ClassKeyboard, 144))
		r.mice = append(r.mice, newDryDevice(ClassMouse, 4))
		r.misc = append(r.misc, newDryDevice(ClassMisc, 2))
		return r, nil
	}

	infos, err := usb.EnumerateHid(0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "cannot enumerate the HID bus")
	}

	// group interfaces per physical device; the LED channel sits on a
	// model-specific interface, control is the lowest other one
	type ifaceSet struct {
		model Model
		ctrl  *usb.DeviceInfo
		led   *usb.DeviceInfo
	}
	found := make(map[string]*ifaceSet)
	for i := range infos {
		info := infos[i]
		model, ok := LookupModel(info.VendorID, info.ProductID)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%04x:%04x:%s", info.VendorID, info.ProductID, info.Serial)
		set, ok := found[key]
		if !ok {
			set = &ifaceSet{model: model}
			found[key] = set
		}
		if info.Interface == model.LEDInterface {
			set.led = &infos[i]
		} else if set.ctrl == nil || info.Interface < set.ctrl.Interface {
			set.ctrl = &infos[i]
		}
	}

	for _, set := range found {
		if set.ctrl == nil || set.led == nil {
			log.Printf("[hwdevices] %s %s: missing interface, skipped\n", set.model.Make, set.model.Name)
			continue
		}
		dev := bindDevice(set.model, *set.ctrl, *set.led)
		log.Printf("[hwdevices] bound %s\n", dev.Info())
		switch dev.Class() {
		case ClassKeyboard:
			r.keyboards = append(r.keyboards, dev)
		case ClassMouse:
			r.mice = append(r.mice, dev)
		default:
			r.misc = append(r.misc, dev)
		}
	}

	if len(r.keyboards)+len(r.mice)+len(r.misc) == 0 {
		log.Println("[hwdevices] no supported devices found")
	}
	return r, nil
}

// AddDevice registers an already-bound device. Used by hot-plug and by
// tests that inject fakes.
func (r *Registry) AddDevice(dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch dev.Class() {
	case ClassKeyboard:
		r.keyboards = append(r.keyboards, dev)
	case ClassMouse:
		r.mice = append(r.mice, dev)
	default:
		r.misc = append(r.misc, dev)
	}
}

// OpenAndInit opens and initializes every bound device, in parallel
// per the worker bound. A device that fails to come up is latched
// failed and evicted by the first scheduler pass instead of aborting
// startup.
func (r *Registry) OpenAndInit() {
	devices := r.All()

	sem := make(chan struct{}, initWorkers)
	var wg sync.WaitGroup
	for _, dev := range devices {
		wg.Add(1)
		sem <- struct{}{}
		go func(dev Device) {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := dev.Open(); err != nil {
				log.Printf("[hwdevices] %s: %v\n", dev.Info(), err)
				dev.Fail()
				return
			}
			if err := dev.SendInitSequence(); err != nil {
				log.Printf("[hwdevices] %s: %v\n", dev.Info(), err)
				dev.Fail()
			}
		}(dev)
	}
	wg.Wait()
}

// AllocateZones assigns each device a contiguous canvas region, in
// category order (keyboards, mice, misc), and returns the canvas sized
// to the sum. Zones never overlap; the invariant is checked before
// returning.
func (r *Registry) AllocateZones() (*canvas.Canvas, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offset := 0
	var zones []canvas.Zone
	for _, list := range [][]Device{r.keyboards, r.mice, r.misc} {
		for _, dev := range list {
			z := canvas.Zone{Offset: offset, Len: dev.Info().LEDCount}
			dev.SetZone(z)
			zones = append(zones, z)
			offset += z.Len
		}
	}

	if err := canvas.ValidateZones(offset, zones); err != nil {
		return nil, err
	}
	return canvas.New(offset), nil
}

// Keyboards returns a snapshot of the keyboard category.
func (r *Registry) Keyboards() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Device(nil), r.keyboards...)
}

// Mice returns a snapshot of the mouse category.
func (r *Registry) Mice() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Device(nil), r.mice...)
}

// Misc returns a snapshot of the misc category.
func (r *Registry) Misc() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Device(nil), r.misc...)
}

// All returns a snapshot of every device across categories.
func (r *Registry) All() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.keyboards)+len(r.mice)+len(r.misc))
	out = append(out, r.keyboards...)
	out = append(out, r.mice...)
	out = append(out, r.misc...)
	return out
}

// AnyFailed reports whether some device has latched failed since the
// last eviction pass.
func (r *Registry) AnyFailed() bool {
	for _, dev := range r.All() {
		if dev.HasFailed() {
			return true
		}
	}
	return false
}

// RemoveFailed evicts every failed device from its category, closing
// its handles, and reports the removals (with their pre-eviction
// indices) so input channels can be dropped index-aligned.
func (r *Registry) RemoveFailed() []Removed {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Removed
	prune := func(list []Device, class DeviceClass) []Device {
		kept := list[:0]
		for idx, dev := range list {
			if dev.HasFailed() {
				removed = append(removed, Removed{Info: dev.Info(), Class: class, Index: idx})
				if err := dev.CloseAll(); err != nil {
					log.Printf("[hwdevices] %s: close after failure: %v\n", dev.Info(), err)
				}
				continue
			}
			kept = append(kept, dev)
		}
		return kept
	}

	r.keyboards = prune(r.keyboards, ClassKeyboard)
	r.mice = prune(r.mice, ClassMouse)
	r.misc = prune(r.misc, ClassMisc)

	for _, rm := range removed {
		log.Printf("[hwdevices] removed failed device %s\n", rm.Info)
	}
	return removed
}

// CloseAll closes every device; part of the orderly shutdown path.
func (r *Registry) CloseAll() {
	for _, dev := range r.All() {
		if err := dev.CloseAll(); err != nil {
			log.Printf("[hwdevices] %s: close: %v\n", dev.Info(), err)
		}
	}
}
