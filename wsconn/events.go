package wsconn

import ws "github.com/tideway-labs/wsrelay"

// Handler is the fixed set of callbacks a Conn's serve loop fires. The set
// of events a connection can produce is closed, so a struct of typed
// fields is used instead of a dynamic emitter: wiring a handler is a
// compile-time check, and an unset field is simply a no-op for that event.
//
// OnOpen, OnMessage, OnPing, OnPong and OnError run on the goroutine that
// called Serve and are not invoked concurrently with each other. OnClose
// runs on whichever goroutine ends the connection: Serve's, or one that
// calls Close.
type Handler struct {
	// OnOpen fires once the connection is ready to send and receive, right
	// before Serve starts reading frames.
	OnOpen func(c *Conn)

	// OnMessage fires once per complete (possibly reassembled and
	// decompressed) text or binary message.
	OnMessage func(c *Conn, opcode ws.OpCode, payload []byte)

	// OnPing fires for every received ping, before the automatic pong
	// reply is sent.
	OnPing func(c *Conn, payload []byte)

	// OnPong fires for every received pong.
	OnPong func(c *Conn, payload []byte)

	// OnError fires for protocol violations and transport errors that end
	// the connection. If unset, the error is logged via log/slog instead
	// of being silently dropped.
	OnError func(c *Conn, err error)

	// OnClose fires exactly once, however the connection ends: peer close
	// frame, local close, or transport failure. payload carries the
	// peer's close frame body, if any was received.
	OnClose func(c *Conn, payload []byte)
}
