package script

// MessageKind discriminates the messages delivered to a script engine
// instance over its private channel.
type MessageKind int

const (
	// MsgStartup runs the script's on_startup handler once after spawn.
	MsgStartup MessageKind = iota
	// MsgTick advances animation state; Delta carries elapsed millis.
	MsgTick
	// MsgRender asks the instance to paint its layer and composite it.
	MsgRender
	// MsgKeyDown and MsgKeyUp forward decoded input events.
	MsgKeyDown
	MsgKeyUp
	// MsgUnload ends the instance as part of a profile switch.
	MsgUnload
	// MsgQuit ends the instance at daemon shutdown; Code carries the
	// exit code handed to the on_quit handler.
	MsgQuit
)

func (k MessageKind) String() string {
	return [...]string{"Startup", "Tick", "Render", "KeyDown", "KeyUp", "Unload", "Quit"}[k]
}

// Message is one event delivered to a script engine instance. Within
// one instance, messages are processed strictly in arrival order.
type Message struct {
	Kind  MessageKind
	Delta uint32 // Tick: elapsed millis since the previous tick
	Key   uint8  // KeyDown/KeyUp: key index
	Code  int    // Quit: exit code
}
