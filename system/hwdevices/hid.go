package hwdevices

import (
	"log"
	"sync"
	"time"

	"github.com/karalabe/usb"
	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

const (
	// hidChunkSize is the feature-report payload size for LED writes.
	hidChunkSize = 64

	// initSettleDelay is slept between init-sequence round-trips;
	// several models NAK follow-up reports sent back-to-back.
	initSettleDelay = 15 * time.Millisecond

	ledReportID    = 0xa1
	eventReportID  = 0x03
	statusReportID = 0x04

	eventQueueDepth = 128
)

// hidDevice is the generic driver over karalabe/usb. It covers every
// table entry; model differences are limited to the init chunks and
// the LED interface index.
type hidDevice struct {
	mu sync.Mutex

	model Model
	info  DeviceInfo

	ctrlInfo usb.DeviceInfo
	ledInfo  usb.DeviceInfo
	ctrl     usb.Device
	led      usb.Device

	bound       bool
	opened      bool
	initialized bool
	failed      bool

	zone canvas.Zone

	events     chan HidEvent
	lastStatus Status
	stopReader chan struct{}
}

// bindDevice recognizes a device without opening it.
func bindDevice(model Model, ctrlInfo, ledInfo usb.DeviceInfo) *hidDevice {
	return &hidDevice{
		model: model,
		info: DeviceInfo{
			VendorID:  model.VendorID,
			ProductID: model.ProductID,
			Serial:    ctrlInfo.Serial,
			Make:      model.Make,
			Model:     model.Name,
			Class:     model.Class,
			LEDCount:  model.LEDCount,
		},
		ctrlInfo:   ctrlInfo,
		ledInfo:    ledInfo,
		bound:      true,
		events:     make(chan HidEvent, eventQueueDepth),
		stopReader: make(chan struct{}),
		lastStatus: Status{"status": "ok"},
	}
}

func (d *hidDevice) Info() DeviceInfo {
	return d.info
}

func (d *hidDevice) Class() DeviceClass {
	return d.model.Class
}

func (d *hidDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.bound {
		return errors.Wrap(ErrNotBound, d.info.String())
	}
	if d.opened {
		return nil
	}

	ctrl, err := d.ctrlInfo.Open()
	if err != nil {
		return errors.Wrapf(err, "open control channel of %s", d.info)
	}
	led, err := d.ledInfo.Open()
	if err != nil {
		ctrl.Close()
		return errors.Wrapf(err, "open LED channel of %s", d.info)
	}

	d.ctrl = ctrl
	d.led = led
	d.opened = true
	return nil
}

// initChunks returns the handshake reports for the device class. The
// payloads follow the shared vendor protocol of the supported models;
// exotic models would plug in their own driver.
func (d *hidDevice) initChunks() [][]byte {
	magic := func(b ...byte) []byte {
		chunk := make([]byte, hidChunkSize)
		copy(chunk, b)
		return chunk
	}
	switch d.model.Class {
	case ClassKeyboard:
		return [][]byte{
			magic(0x15, 0x00, 0x01),
			magic(0x05, 0x04, 0x00),
			magic(0x0e, 0x05, 0x01, 0x00, 0x04),
		}
	case ClassMouse:
		return [][]byte{
			magic(0x0e, 0x06, 0x01, 0x00, 0xff),
		}
	default:
		return [][]byte{
			magic(0x04, 0x01),
		}
	}
}

func (d *hidDevice) SendInitSequence() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return errors.Wrap(ErrNotOpened, d.info.String())
	}

	for i, chunk := range d.initChunks() {
		n, err := d.ctrl.Write(chunk)
		if err != nil {
			return errors.Wrapf(ErrWrite, "init chunk %d of %s: %v", i, d.info, err)
		}
		if n != len(chunk) {
			return errors.Wrapf(ErrShortWrite, "init chunk %d of %s: wrote %d of %d", i, d.info, n, len(chunk))
		}
		time.Sleep(initSettleDelay)
	}

	d.initialized = true
	go d.readEvents()
	return nil
}

// readEvents blocks on the control channel and decodes key and status
// reports into the pending-event queue, consumed by the scheduler's
// HID poll sub-tick. A read error latches the device failed.
func (d *hidDevice) readEvents() {
	d.mu.Lock()
	ctrl := d.ctrl
	d.mu.Unlock()
	if ctrl == nil {
		return
	}

	for {
		select {
		case <-d.stopReader:
			return
		default:
		}

		buf := make([]byte, 8)
		buf[0] = eventReportID
		n, err := ctrl.Read(buf)
		if err != nil {
			log.Printf("[hwdevices] %s: read error: %v\n", d.info, err)
			d.Fail()
			return
		}
		if n < 3 {
			continue
		}

		var ev HidEvent
		switch buf[0] {
		case eventReportID:
			if buf[1] == 0 {
				ev = HidEvent{Kind: HidKeyUp, KeyIndex: buf[2]}
			} else {
				ev = HidEvent{Kind: HidKeyDown, KeyIndex: buf[2]}
			}
		case statusReportID:
			st := d.decodeStatus(buf)
			d.mu.Lock()
			d.lastStatus = st
			d.mu.Unlock()
			ev = HidEvent{Kind: HidStatusReport, Status: st}
		default:
			continue
		}

		select {
		case d.events <- ev:
		default:
			// queue full: scheduler has fallen behind, drop the oldest
			select {
			case <-d.events:
			default:
			}
			d.events <- ev
		}
	}
}

func (d *hidDevice) decodeStatus(buf []byte) Status {
	st := Status{"status": "ok"}
	switch buf[1] {
	case 0x01:
		st["battery-level"] = batteryLabel(buf[2])
	case 0x02:
		st["signal-strength"] = batteryLabel(buf[2])
	}
	return st
}

func batteryLabel(raw uint8) string {
	switch {
	case raw >= 200:
		return "full"
	case raw >= 100:
		return "good"
	case raw >= 50:
		return "low"
	default:
		return "critical"
	}
}

func (d *hidDevice) SendLEDFrame(frame []canvas.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return errors.Wrap(ErrNotInitialized, d.info.String())
	}
	if len(frame) != d.model.LEDCount {
		return errors.Wrapf(ErrInvalidResult, "%s: frame has %d cells, zone has %d", d.info, len(frame), d.model.LEDCount)
	}

	payload := make([]byte, 1+3*len(frame))
	payload[0] = ledReportID
	for i, c := range frame {
		payload[1+3*i] = c.R
		payload[2+3*i] = c.G
		payload[3+3*i] = c.B
	}

	for off := 0; off < len(payload); off += hidChunkSize {
		end := off + hidChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[off:end]
		n, err := d.led.Write(chunk)
		if err != nil {
			return errors.Wrapf(ErrWrite, "LED frame of %s: %v", d.info, err)
		}
		if n != len(chunk) {
			return errors.Wrapf(ErrShortWrite, "LED frame of %s: wrote %d of %d", d.info, n, len(chunk))
		}
	}
	return nil
}

func (d *hidDevice) PendingEvents() []HidEvent {
	var out []HidEvent
	for {
		select {
		case ev := <-d.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (d *hidDevice) Status() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil, errors.Wrap(ErrNotInitialized, d.info.String())
	}
	if d.failed {
		return Status{"status": "failed"}, nil
	}
	out := make(Status, len(d.lastStatus))
	for k, v := range d.lastStatus {
		out[k] = v
	}
	return out, nil
}

func (d *hidDevice) Fail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = true
}

func (d *hidDevice) HasFailed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed
}

func (d *hidDevice) CloseAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.stopReader:
	default:
		close(d.stopReader)
	}

	var first error
	if d.led != nil {
		if err := d.led.Close(); err != nil && first == nil {
			first = err
		}
		d.led = nil
	}
	if d.ctrl != nil {
		if err := d.ctrl.Close(); err != nil && first == nil {
			first = err
		}
		d.ctrl = nil
	}
	d.opened = false
	d.initialized = false
	return errors.Wrapf(first, "close %s", d.info)
}

func (d *hidDevice) Zone() canvas.Zone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zone
}

func (d *hidDevice) SetZone(z canvas.Zone) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.zone = z
}
