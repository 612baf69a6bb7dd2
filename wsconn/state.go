package wsconn

// Role identifies which side of a connection a Conn represents. The role
// determines masking direction: a client masks every outbound frame and
// fails the connection on an inbound masked one; a server does the
// opposite, per RFC6455 section 5.1.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// ReadyState mirrors the four-state connection lifecycle used throughout
// the WebSocket API family (browser WebSocket.readyState and RFC6455's own
// description of the handshake/open/closing/closed progression).
type ReadyState uint8

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
