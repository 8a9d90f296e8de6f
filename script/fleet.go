package script

import (
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/profiles"
	"github.com/eruption-project/eruption-sub000/script/modules"
	"github.com/eruption-project/eruption-sub000/system/canvas"
)

const (
	// sendQueueDepth bounds each instance's message queue. Sends never
	// block the scheduler; an instance that stops draining its queue is
	// latched failed on the next send instead.
	sendQueueDepth = 512

	// teardownTimeout bounds the wait for instance goroutines to finish
	// their current handler during a profile switch.
	teardownTimeout = 2 * time.Second
)

// ErrDrainTimeout is returned when quit draining exceeds its deadline.
var ErrDrainTimeout = errors.New("script: quit drain timed out")

// instance pairs a script file with its message channel and the
// one-way failure latch. Owned exclusively by the Fleet.
type instance struct {
	scriptFile string
	tx         chan Message
	done       chan struct{}
	failed     bool
}

// Fleet owns the script engine instances of the currently active
// profile. Exactly one fleet exists at a time; Teardown must complete
// before the next Spawn so two script sets never race on the canvas.
type Fleet struct {
	mu        sync.Mutex
	profile   *profiles.Profile
	instances []*instance
}

// Spawn starts one engine instance per script in the profile's list
// order. A per-instance spawn failure is latched on that instance but
// does not abort the rest: a single broken script must not take the
// whole profile down.
func Spawn(profile *profiles.Profile, shared *canvas.Canvas, mods []modules.Module) *Fleet {
	f := &Fleet{profile: profile}

	for idx, m := range profile.Manifests {
		ins := &instance{
			scriptFile: m.ScriptFile,
			done:       make(chan struct{}),
		}
		f.instances = append(f.instances, ins)

		engine, err := newEngine(m, profile.Parameters(idx), shared, mods)
		if err != nil {
			log.Printf("[fleet] failed to spawn %s: %v\n", m.Name, err)
			ins.failed = true
			close(ins.done)
			continue
		}

		ins.tx = make(chan Message, sendQueueDepth)
		go f.run(idx, engine, ins, ins.tx)
		ins.tx <- Message{Kind: MsgStartup}
	}

	return f
}

// run is the instance goroutine: strictly sequential message handling,
// failure latched at the instance boundary. The receive channel is
// passed in because Teardown/Drain nil the tx field under the lock;
// the goroutine must keep draining the original channel until close.
func (f *Fleet) run(idx int, engine *Engine, ins *instance, rx <-chan Message) {
	defer close(ins.done)
	for msg := range rx {
		switch msg.Kind {
		case MsgUnload:
			return
		case MsgQuit:
			if err := engine.handle(msg); err != nil {
				log.Printf("[fleet] %s: quit handler: %v\n", engine.manifest.Name, err)
			}
			return
		default:
			if err := engine.handle(msg); err != nil {
				log.Printf("[fleet] %s: %v\n", engine.manifest.Name, err)
				f.markFailed(idx, err)
				return
			}
		}
	}
}

func (f *Fleet) markFailed(idx int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.instances[idx].failed {
		f.instances[idx].failed = true
		log.Printf("[fleet] instance %d (%s) marked failed: %v\n", idx, f.instances[idx].scriptFile, err)
	}
}

// Broadcast sends the message to every non-failed instance. The send
// is fire-and-forget; a full queue latches that one instance failed
// and subsequent broadcasts skip it until the fleet is rebuilt.
func (f *Fleet) Broadcast(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for idx, ins := range f.instances {
		if ins.failed || ins.tx == nil {
			continue
		}
		select {
		case ins.tx <- msg:
		default:
			ins.failed = true
			log.Printf("[fleet] instance %d (%s) send queue full, marked failed\n", idx, ins.scriptFile)
		}
	}
}

// Teardown sends Unload to every non-failed instance, closes all
// channels and waits (bounded) for the instance goroutines to finish
// their current handler. Must fully complete before spawning the next
// fleet.
func (f *Fleet) Teardown() {
	f.Broadcast(Message{Kind: MsgUnload})

	f.mu.Lock()
	for _, ins := range f.instances {
		if ins.tx != nil {
			close(ins.tx)
			ins.tx = nil
		}
	}
	instances := append([]*instance(nil), f.instances...)
	f.mu.Unlock()

	// Absolute deadline shared across instances: a time.After channel
	// fires once, so each wait gets its own timer against the deadline.
	deadline := time.Now().Add(teardownTimeout)
	for _, ins := range instances {
		select {
		case <-ins.done:
			continue
		default:
		}
		select {
		case <-ins.done:
		case <-time.After(time.Until(deadline)):
			log.Printf("[fleet] teardown: instance %s did not stop in time\n", ins.scriptFile)
		}
	}
}

// Drain broadcasts Quit and blocks until every instance finished its
// quit handler or the timeout elapses. Hardware teardown must not
// start before this returns.
func (f *Fleet) Drain(code int, timeout time.Duration) error {
	f.Broadcast(Message{Kind: MsgQuit, Code: code})

	f.mu.Lock()
	for _, ins := range f.instances {
		if ins.tx != nil {
			close(ins.tx)
			ins.tx = nil
		}
	}
	instances := append([]*instance(nil), f.instances...)
	f.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for _, ins := range instances {
		select {
		case <-ins.done:
			continue
		default:
		}
		select {
		case <-ins.done:
		case <-time.After(time.Until(deadline)):
			return errors.Wrap(ErrDrainTimeout, ins.scriptFile)
		}
	}
	return nil
}

// Profile returns the profile this fleet was spawned for.
func (f *Fleet) Profile() *profiles.Profile {
	return f.profile
}

// Len returns the total instance count, failed included.
func (f *Fleet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.instances)
}

// LiveCount returns the number of instances that have not failed.
func (f *Fleet) LiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ins := range f.instances {
		if !ins.failed {
			n++
		}
	}
	return n
}

// FailedScripts lists the script files of failed instances.
func (f *Fleet) FailedScripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ins := range f.instances {
		if ins.failed {
			out = append(out, ins.scriptFile)
		}
	}
	return out
}
