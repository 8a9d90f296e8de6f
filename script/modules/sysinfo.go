package modules

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// SysInfo exposes coarse system sensors to scripts (load average,
// uptime ticks). Values are sampled on the module's own goroutine so
// a script call never blocks on /proc.
type SysInfo struct {
	mu      sync.RWMutex
	loadAvg float64
	started time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewSysInfo() *SysInfo {
	s := &SysInfo{
		started: time.Now(),
		stop:    make(chan struct{}),
	}
	go s.sample()
	return s
}

func (s *SysInfo) Name() string {
	return "sysinfo"
}

func (s *SysInfo) sample() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		s.refresh()
		select {
		case <-ticker.C:
		case <-s.stop:
			return
		}
	}
}

func (s *SysInfo) refresh() {
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return
	}
	if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
		s.mu.Lock()
		s.loadAvg = v
		s.mu.Unlock()
	}
}

func (s *SysInfo) Register(vm *goja.Runtime) error {
	if err := vm.Set("sys_load_avg", func() float64 {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.loadAvg
	}); err != nil {
		return err
	}
	return vm.Set("sys_uptime_millis", func() int64 {
		return time.Since(s.started).Milliseconds()
	})
}

func (s *SysInfo) MainLoopHook(tick uint64) {}

// Close stops the sampling goroutine.
func (s *SysInfo) Close() {
	s.once.Do(func() { close(s.stop) })
}
