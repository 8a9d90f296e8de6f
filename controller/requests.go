package controller

import (
	"log"

	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/rpc"
)

// handleRequest services one control request from the transport. Runs
// inside the main loop's event wait; everything here must be quick and
// must never block on a channel.
func (c *Controller) handleRequest(req rpc.Request) {
	var resp rpc.Response

	switch req.Type {
	case rpc.RequestGetStatus:
		resp.Status = c.buildStatus()

	case rpc.RequestSwitchProfile:
		if req.Profile == "" {
			resp.Error = ErrNoTargetProfile
		} else {
			c.state.RequestSwitch(req.Profile)
		}

	case rpc.RequestSwitchSlot:
		resp.Error = c.state.SetActiveSlot(req.Slot)

	case rpc.RequestReloadProfile:
		c.state.RequestReload()

	case rpc.RequestSetBrightness:
		c.state.SetBrightness(req.IntValue)

	case rpc.RequestSetHue:
		c.state.SetHue(req.FloatValue)

	case rpc.RequestSetSaturation:
		c.state.SetSaturation(req.FloatValue)

	case rpc.RequestSetLightness:
		c.state.SetLightness(req.FloatValue)

	case rpc.RequestSetParameter:
		resp.Error = c.setParameter(req)

	case rpc.RequestAddColorScheme:
		if err := c.Config.Schemes.Set(req.SchemeName, req.Scheme); err != nil {
			resp.Error = err
		} else {
			c.schemesChanged()
		}

	case rpc.RequestRemoveColorScheme:
		if err := c.Config.Schemes.Remove(req.SchemeName); err != nil {
			resp.Error = err
		} else {
			c.schemesChanged()
		}

	case rpc.RequestEnterFailsafe:
		c.state.RequestFailsafe()

	case rpc.RequestQuit:
		c.state.RequestQuit()

	default:
		resp.Error = errors.Errorf("[controller] unknown request type %d", req.Type)
	}

	if req.Response != nil {
		select {
		case req.Response <- resp:
		default:
			log.Printf("[controller] dropping response for %s: transport not draining\n", req.Type)
		}
	}
}

// setParameter updates one script parameter on the active profile,
// persists it to the profile's state sidecar, and schedules a reload
// so the running fleet picks it up.
func (c *Controller) setParameter(req rpc.Request) error {
	f := c.switcher.Fleet()
	if f == nil {
		return errors.New("[controller] no active profile")
	}
	p := f.Profile()
	if p.IsFailsafe() {
		return errors.New("[controller] cannot set parameters on the failsafe profile")
	}
	p.SetValue(req.Script, req.Parameter, req.ParamValue)
	if err := p.SaveState(p.Config); err != nil {
		return errors.Wrap(err, "[controller] cannot persist parameter")
	}
	c.state.RequestReload()
	return nil
}

// schemesChanged persists the scheme table and reloads the active
// profile so scripts referencing schemes by name pick up the change.
func (c *Controller) schemesChanged() {
	c.requestPersist()
	c.state.RequestReload()
	c.broadcaster.Publish(rpc.Notification{Type: rpc.ColorSchemesChanged})
}

// buildStatus assembles the full status snapshot for GetStatus.
func (c *Controller) buildStatus() *rpc.DaemonStatus {
	name, _ := c.state.ActiveProfile()
	status := &rpc.DaemonStatus{
		ActiveProfile: name,
		ActiveSlot:    c.state.ActiveSlot(),
		SlotNames:     c.state.SlotNames(),
		SlotProfiles:  c.state.SlotProfiles(),
		Brightness:    c.state.Brightness(),
	}
	if c.cv != nil {
		status.CanvasSize = c.cv.Size()
	}

	if f := c.switcher.Fleet(); f != nil {
		failed := make(map[string]bool)
		for _, file := range f.FailedScripts() {
			failed[file] = true
		}
		p := f.Profile()
		for i, file := range p.ActiveScripts {
			s := rpc.ScriptStatus{File: file}
			if i < len(p.Manifests) && p.Manifests[i] != nil {
				m := p.Manifests[i]
				s.Name = m.Name
				s.Description = m.Description
				s.Tags = m.Tags
				s.Failed = failed[m.ScriptFile]
			}
			status.Scripts = append(status.Scripts, s)
		}
	}

	if c.registry != nil {
		for _, dev := range c.registry.All() {
			st, err := dev.Status()
			if err != nil {
				st = map[string]string{"status": "unknown"}
			}
			status.Devices = append(status.Devices, rpc.DeviceStatus{
				Device: dev.Info().String(),
				Status: st,
			})
		}
	}

	return status
}
