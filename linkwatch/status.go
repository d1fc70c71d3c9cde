package linkwatch

// State is a connection status as seen by one layer, or the published status of an endpoint.
type State uint32

const (
	// StateUnknown means no evidence has been seen yet.
	StateUnknown State = iota
	// StateConnected means the endpoint is reachable.
	StateConnected
	// StateDisconnected means the endpoint is unreachable.
	StateDisconnected
)

// IsConnected returns if the state is connected.
func (s State) IsConnected() bool { return s == StateConnected }

// IsDisconnected returns if the state is disconnected.
func (s State) IsDisconnected() bool { return s == StateDisconnected }

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// resolve fuses the transport and logical states. It keeps cur when neither layer has evidence.
func resolve(transport, logical, cur State) State {
	switch {
	case transport == StateDisconnected || logical == StateDisconnected:
		return StateDisconnected
	case transport == StateConnected || logical == StateConnected:
		return StateConnected
	default:
		return cur
	}
}

// Kind is the type of a managed endpoint.
type Kind uint8

const (
	// StreamClient is a connection-oriented client such as a TCP socket.
	StreamClient Kind = iota + 1
	// DatagramClient is a connectionless client such as a UDP socket.
	DatagramClient
	// SerialPort is a serial line; it has no disconnect concept of its own.
	SerialPort
	// StreamListener accepts many client sessions.
	StreamListener
)

// String returns string representation of the kind.
func (k Kind) String() string {
	switch k {
	case StreamClient:
		return "StreamClient"
	case DatagramClient:
		return "DatagramClient"
	case SerialPort:
		return "SerialPort"
	case StreamListener:
		return "StreamListener"
	default:
		return "Unknown"
	}
}

// ParseKind converts the String form of a kind back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{StreamClient, DatagramClient, SerialPort, StreamListener} {
		if k.String() == s {
			return k, true
		}
	}

	return 0, false
}

// IsClient returns if the kind is one of the client kinds.
func (k Kind) IsClient() bool {
	return k == StreamClient || k == DatagramClient || k == SerialPort
}

// IsListener returns if the kind is StreamListener.
func (k Kind) IsListener() bool { return k == StreamListener }

func (k Kind) valid() bool {
	return k >= StreamClient && k <= StreamListener
}

// Layer identifies which input of the resolver triggered a published status change.
type Layer uint8

const (
	// LayerTransport is the status reported directly by the socket or port.
	LayerTransport Layer = iota
	// LayerLogical is the status inferred from protocol evidence.
	LayerLogical
)

// String returns string representation of the layer.
func (l Layer) String() string {
	if l == LayerLogical {
		return "Logical"
	}

	return "Transport"
}

// Handle is the opaque identity of a registered endpoint. Handles are never reused by an Engine.
type Handle uint64

// StatusHandler receives every change of an endpoint's published status.
//
// Note: the handler is invoked in a blocking mode, and changes of one endpoint are delivered
// in order. It must not call Block for the endpoint being reported.
type StatusHandler func(h Handle, status State)
