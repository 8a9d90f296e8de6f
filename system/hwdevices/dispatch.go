package hwdevices

import (
	"context"
	"log"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// RenderRequest asks the dispatcher to flush the canvas to hardware.
type RenderRequest struct {
	Params        canvas.Params
	FadeRemaining int
	FadeTotal     int

	// Generation invalidates the dispatcher's per-device frame cache
	// when it moves; the scheduler bumps it after device status polls
	// and evictions so the next render rewrites every device.
	Generation uint64

	// Overrides maps a device OverrideKey to a brightness replacing
	// the global one for that device only.
	Overrides map[string]int

	// Off forces an all-black frame regardless of canvas content;
	// used by the shutdown path.
	Off bool
}

// Dispatcher serializes LED frame transmission on its own goroutine so
// slow or wedged hardware I/O never stalls the scheduler. It runs as a
// suture service next to the controller.
type Dispatcher struct {
	registry *Registry
	cv       *canvas.Canvas
	reqCh    chan RenderRequest

	// touched only from the flush path: the last frame sent per device
	// and the generation it was sent under. An unchanged frame within
	// one generation is not rewritten.
	lastGen    uint64
	lastFrames map[string][]canvas.RGBA
}

func NewDispatcher(registry *Registry, cv *canvas.Canvas) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		cv:         cv,
		lastFrames: make(map[string][]canvas.RGBA),
		// depth 1: RenderNow is sent at most once per render sub-tick
		// and a second pending frame would be stale anyway
		reqCh: make(chan RenderRequest, 1),
	}
}

func (d *Dispatcher) String() string {
	return "DeviceIODispatcher"
}

// RenderNow enqueues a flush without blocking. If the dispatcher is
// still busy with the previous frame, the new request is dropped; the
// next sub-tick retries with fresher content.
func (d *Dispatcher) RenderNow(req RenderRequest) {
	select {
	case d.reqCh <- req:
	default:
	}
}

// Serve consumes requests until the context ends.
func (d *Dispatcher) Serve(ctx context.Context) error {
	log.Println("[iodispatch] starting device I/O dispatcher")
	for {
		select {
		case req := <-d.reqCh:
			d.flush(req)
		case <-ctx.Done():
			log.Println("[iodispatch] exiting device I/O dispatcher")
			return ctx.Err()
		}
	}
}

// flush writes one frame to every non-failed device. Post-processing
// is applied uniformly here; the per-device brightness override (or
// the global brightness) dims each zone afterwards. A write failure
// latches the device failed rather than retrying: a wedged USB device
// gets evicted instead of starving its siblings of frame time.
func (d *Dispatcher) flush(req RenderRequest) {
	base := req.Params
	base.Brightness = 100
	var out []canvas.RGBA
	if !req.Off {
		out = d.cv.Output(base, req.FadeRemaining, req.FadeTotal)
	}
	force := req.Off || req.Generation != d.lastGen
	if !req.Off {
		d.lastGen = req.Generation
	}

	for _, dev := range d.registry.All() {
		if dev.HasFailed() {
			continue
		}
		zone := dev.Zone()
		key := dev.Info().OverrideKey()
		frame := make([]canvas.RGBA, zone.Len)
		if !req.Off {
			if zone.Offset+zone.Len > len(out) {
				log.Printf("[iodispatch] %s: zone %+v outside canvas, skipped\n", dev.Info(), zone)
				continue
			}
			brightness := req.Params.Brightness
			if o, ok := req.Overrides[key]; ok {
				brightness = o
			}
			for i, c := range out[zone.Offset : zone.Offset+zone.Len] {
				frame[i] = c.Dim(brightness)
			}
			if !force && framesEqual(d.lastFrames[key], frame) {
				continue
			}
		}
		if err := dev.SendLEDFrame(frame); err != nil {
			log.Printf("[iodispatch] %s: %v\n", dev.Info(), err)
			dev.Fail()
			continue
		}
		if !req.Off {
			d.lastFrames[key] = frame
		}
	}
}

func framesEqual(a, b []canvas.RGBA) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LedsOff synchronously writes an all-black frame; shutdown path only.
func (d *Dispatcher) LedsOff() {
	d.flush(RenderRequest{Off: true})
}
