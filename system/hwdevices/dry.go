package hwdevices

import (
	"log"
	"sync"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// dryDevice stands in for real hardware when the daemon runs with
// DRY_RUN set: every capability is a no-op that logs. Probing in dry
// mode yields one of each class so the full pipeline can be exercised
// on a machine with no supported device attached.
type dryDevice struct {
	mu sync.Mutex

	info        DeviceInfo
	initialized bool
	failed      bool
	zone        canvas.Zone
	frames      int
}

func newDryDevice(class DeviceClass, ledCount int) *dryDevice {
	return &dryDevice{
		info: DeviceInfo{
			VendorID:  0xffff,
			ProductID: uint16(class),
			Serial:    "dry-run",
			Make:      "Eruption",
			Model:     "Virtual " + class.String(),
			Class:     class,
			LEDCount:  ledCount,
		},
	}
}

func (d *dryDevice) Info() DeviceInfo   { return d.info }
func (d *dryDevice) Class() DeviceClass { return d.info.Class }
func (d *dryDevice) Open() error        { return nil }

func (d *dryDevice) SendInitSequence() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = true
	log.Printf("[dry run] %s: init sequence\n", d.info)
	return nil
}

func (d *dryDevice) SendLEDFrame(frame []canvas.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	if d.frames%600 == 0 {
		log.Printf("[dry run] %s: %d frames written\n", d.info, d.frames)
	}
	return nil
}

func (d *dryDevice) PendingEvents() []HidEvent {
	return nil
}

func (d *dryDevice) Status() (Status, error) {
	return Status{"status": "ok"}, nil
}

func (d *dryDevice) Fail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = true
}

func (d *dryDevice) HasFailed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}

func (d *dryDevice) CloseAll() error {
	log.Printf("[dry run] %s: closed\n", d.info)
	return nil
}

func (d *dryDevice) Zone() canvas.Zone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zone
}

func (d *dryDevice) SetZone(z canvas.Zone) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.zone = z
}
