package platform

// Event is the tagged union of gateway deliveries. The dispatcher
// consumes these via exhaustive type switching; every variant embeds
// nothing and carries only its own payload.
type Event interface {
	isEvent()
}

// ReadyEvent is delivered once the gateway handshake completes and the
// community roster is populated. Commands are only dispatched after it.
type ReadyEvent struct {
	BotUser     User
	Communities []Community
}

// MessageEvent is a plain chat message.
type MessageEvent struct {
	Message Message
}

// CommandEvent is a structured command invocation.
type CommandEvent struct {
	Invocation Invocation
}

// DisconnectEvent reports that the gateway connection was lost. Err is
// nil for a clean close.
type DisconnectEvent struct {
	Err error
}

func (ReadyEvent) isEvent()      {}
func (MessageEvent) isEvent()    {}
func (CommandEvent) isEvent()    {}
func (DisconnectEvent) isEvent() {}
