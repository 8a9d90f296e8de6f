package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterFansOut(t *testing.T) {
	b := NewBroadcaster()
	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish(Notification{Type: BrightnessChanged, IntValue: 40})

	require.Equal(t, 40, (<-first).IntValue)
	require.Equal(t, 40, (<-second).IntValue)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()

	// overflow the subscriber queue; the publisher must not stall
	for i := 0; i < 100; i++ {
		b.Publish(Notification{Type: ActiveSlotChanged, Slot: i})
	}

	// the queue holds the earliest events, the rest were dropped
	n := 0
	for {
		select {
		case <-ch:
			n++
			continue
		default:
		}
		break
	}
	require.Equal(t, 32, n)
}

func TestEventTypeStrings(t *testing.T) {
	require.Equal(t, "ActiveProfileChanged", ActiveProfileChanged.String())
	require.Equal(t, "ColorSchemesChanged", ColorSchemesChanged.String())
	require.Equal(t, "SwitchProfile", RequestSwitchProfile.String())
}
