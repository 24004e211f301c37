package protocol

// WebSocket event names pushed from server to client.
const (
	EventPairingState     = "pairing.state"
	EventPairingConnected = "pairing.connected"
	EventHealth           = "health"
	EventShutdown         = "shutdown"
)
