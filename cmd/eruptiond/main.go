package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	suture "github.com/thejerf/suture/v4"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/eruption-project/eruption-sub000/controller"
	"github.com/eruption-project/eruption-sub000/rpc"
	"github.com/eruption-project/eruption-sub000/script/modules"
	"github.com/eruption-project/eruption-sub000/system/fswatch"
	"github.com/eruption-project/eruption-sub000/system/persist"
	"github.com/eruption-project/eruption-sub000/util"
)

// Compile time injected variables
var (
	Version     = "v0.0.0-dev"
	IsDebug     = "yes"
	logLocation = "/var/log/eruptiond.log"
)

func main() {
	var profileDirs, scriptDirs util.ArrayFlags
	flag.Var(&profileDirs, "profile-dir", "profile directory, repeatable")
	flag.Var(&scriptDirs, "script-dir", "script directory, repeatable")
	configPath := flag.String("config", "/etc/eruption/eruption.conf", "daemon config file")
	stateDir := flag.String("state-dir", "", "state directory, overrides the config file")
	startProfile := flag.String("profile", "", "profile to activate on a fresh state directory")
	dryRun := flag.Bool("dry-run", os.Getenv("DRY_RUN") != "", "run without hardware access")
	flag.Parse()

	if IsDebug == "no" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logLocation,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		})
	}

	log.Printf("eruptiond version: %s\n", Version)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("[daemon] cannot load config: %+v\n", err)
	}
	if len(profileDirs) > 0 {
		cfg.ProfileDirs = profileDirs
	}
	if len(scriptDirs) > 0 {
		cfg.ScriptDirs = scriptDirs
	}
	if *stateDir != "" {
		cfg.StateDir = *stateDir
	}
	if *startProfile != "" {
		cfg.StartProfile = *startProfile
	}

	helper, err := persist.NewFileHelper(cfg.StateDir)
	if err != nil {
		log.Fatalf("[daemon] cannot open state directory: %+v\n", err)
	}

	store, err := modules.NewPersistence(filepath.Join(cfg.StateDir, "script-store.toml"))
	if err != nil {
		log.Fatalf("[daemon] cannot open script store: %+v\n", err)
	}
	sysinfo := modules.NewSysInfo()
	defer sysinfo.Close()

	schemes := persist.NewColorSchemes()

	broadcaster := rpc.NewBroadcaster()
	requestCh := make(chan rpc.Request, 8)
	watcher := fswatch.New(cfg.ProfileDirs, cfg.ScriptDirs, *configPath)

	ctrl, err := controller.New(controller.Config{
		ProfileDirs:    cfg.ProfileDirs,
		ScriptDirs:     cfg.ScriptDirs,
		StartProfile:   cfg.StartProfile,
		AfkProfile:     cfg.AfkProfile,
		AfkTimeout:     time.Duration(cfg.AfkTimeoutSecs) * time.Second,
		FadeMillis:     cfg.FadeMillis,
		DryRun:         *dryRun,
		Version:        Version,
		ConfigRegistry: helper,
		Schemes:        schemes,
		Broadcaster:    broadcaster,
		RequestCh:      requestCh,
		FsEvents:       watcher.Events(),
		Modules:        []modules.Module{store, sysinfo, modules.NewColorSchemes(schemes)},
	})
	if err != nil {
		log.Fatalf("[daemon] cannot create controller: %+v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go logNotifications(ctx, broadcaster.Subscribe())

	rootSupervisor := suture.New("eruptiond", suture.Spec{})
	rootSupervisor.Add(watcher)
	rootSupervisor.Add(ctrl)

	sigc := make(chan os.Signal, 1)

	go func() {
		supervisorErr := rootSupervisor.Serve(ctx)
		if supervisorErr != nil && supervisorErr != context.Canceled {
			log.Printf("[daemon] rootSupervisor returns error: %+v\n", supervisorErr)
			sigc <- syscall.SIGTERM
		}
	}()

	signal.Notify(
		sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	for sig := range sigc {
		if sig == syscall.SIGHUP {
			log.Println("[daemon] SIGHUP received, reloading active profile")
			requestCh <- rpc.Request{Type: rpc.RequestReloadProfile}
			continue
		}
		log.Printf("[daemon] signal received: %+v\n", sig)
		break
	}

	cancel()
	// grace period covers the script quit drain plus hardware teardown
	time.Sleep(controller.QuitDrainTimeout + time.Second)

	if err := store.Save(); err != nil {
		log.Printf("[daemon] cannot save script store: %+v\n", err)
	}
}

// logNotifications is the fallback observer: without an attached
// transport the state changes still land in the log.
func logNotifications(ctx context.Context, ch <-chan rpc.Notification) {
	for {
		select {
		case n := <-ch:
			switch n.Type {
			case rpc.ActiveProfileChanged:
				log.Printf("[notify] active profile: %s\n", n.Profile)
			case rpc.ActiveSlotChanged:
				log.Printf("[notify] active slot: %d\n", n.Slot)
			case rpc.BrightnessChanged:
				log.Printf("[notify] brightness: %d\n", n.IntValue)
			case rpc.HueChanged, rpc.SaturationChanged, rpc.LightnessChanged:
				log.Printf("[notify] %s: %.2f\n", n.Type, n.FloatValue)
			case rpc.DeviceHotplug:
				log.Printf("[notify] device hotplug: %s (removed=%v)\n", n.Device, n.Removed)
			case rpc.DeviceStatusChanged:
				log.Printf("[notify] device status: %s %v\n", n.Device, n.Status)
			default:
				log.Printf("[notify] %s\n", n.Type)
			}
		case <-ctx.Done():
			return
		}
	}
}
