package wsconn

import (
	"bytes"
	"compress/flate"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gobwas/pool/pbytes"

	ws "github.com/tideway-labs/wsrelay"
	"github.com/tideway-labs/wsrelay/wsflate"
)

const (
	defaultSocketBufferLength = 4096
	defaultMaxMessageLength   = 1 << 20
)

// contState tracks the in-progress fragmented message, if any, as a single
// growable buffer plus a flag recording whether the first fragment carried
// the permessage-deflate compression bit. There is no list of per-fragment
// buffers to glue together at the end; every fragment's payload is appended
// directly onto the one buffer as it arrives.
type contState struct {
	started    bool
	op         ws.OpCode
	compressed bool
	buf        []byte
}

// Conn represents one end of an established WebSocket connection. It owns
// frame decoding, fragmentation reassembly, control-frame handling and
// outbound write serialization. Build one with NewConn and start its event
// loop with Serve; Serve blocks until the connection closes.
type Conn struct {
	Role    Role
	Handler Handler

	// PerMessageDeflate reports whether permessage-deflate was negotiated
	// for this connection during the handshake.
	PerMessageDeflate bool

	// MaxMessageLength caps the total reassembled size of a message,
	// fragmented or not. Zero means defaultMaxMessageLength.
	MaxMessageLength int64

	// SocketBufferLength sizes both the read buffer used by Serve and the
	// chunk size outbound messages are fragmented into. Zero means
	// defaultSocketBufferLength.
	SocketBufferLength int

	// Request is populated for server-side connections, describing the
	// upgrade request that produced this Conn. Handshake holds the
	// negotiated handshake result and is populated by both Client and
	// Server.
	Request   *http.Request
	Handshake ws.Handshake

	transport io.ReadWriteCloser
	dec       decoder

	writeMu sync.Mutex

	stateMu sync.Mutex
	state   ReadyState

	sentCloseMu sync.Mutex
	sentClose   bool

	closeOnce sync.Once

	cont contState
}

// NewConn wraps transport (already past the handshake) in a Conn. The
// connection is in StateConnecting until Serve is called.
func NewConn(role Role, transport io.ReadWriteCloser, h Handler) *Conn {
	return &Conn{
		Role:      role,
		Handler:   h,
		transport: transport,
		state:     StateConnecting,
	}
}

// ReadyState reports the connection's current lifecycle state.
func (c *Conn) ReadyState() ReadyState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Conn) setState(s ReadyState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Conn) maxMessageLength() int64 {
	if c.MaxMessageLength <= 0 {
		return defaultMaxMessageLength
	}
	return c.MaxMessageLength
}

func (c *Conn) socketBufferLength() int {
	if c.SocketBufferLength <= 0 {
		return defaultSocketBufferLength
	}
	return c.SocketBufferLength
}

func (c *Conn) side() ws.Side {
	if c.Role == RoleServer {
		return ws.ServerSide
	}
	return ws.ClientSide
}

// Serve runs the connection's read loop until the connection closes,
// either because the peer sent a close frame, the transport failed, or a
// protocol violation was detected. It fires OnOpen before reading the first
// frame and is guaranteed to fire OnClose exactly once before returning.
func (c *Conn) Serve() {
	c.setState(StateOpen)
	if cb := c.Handler.OnOpen; cb != nil {
		cb(c)
	}

	buf := make([]byte, c.socketBufferLength())
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			c.dec.Feed(buf[:n])
			if !c.drainAll() {
				return
			}
		}
		if err != nil {
			c.fail(err)
			return
		}
	}
}

// drainAll decodes and dispatches every complete frame currently buffered.
// It returns false once the connection has been closed, signaling Serve to
// stop reading.
func (c *Conn) drainAll() bool {
	for {
		f, ok, err := c.dec.Drain()
		if err != nil {
			c.closeWithProtocolError(err)
			return false
		}
		if !ok {
			return true
		}
		if !c.handleFrame(f) {
			return false
		}
	}
}

func (c *Conn) handleFrame(f ws.Frame) bool {
	if err := ws.CheckHeader(f.Header, c.side(), c.PerMessageDeflate); err != nil {
		c.closeWithProtocolError(err)
		return false
	}
	if f.Header.Masked {
		f = ws.UnmaskFrameInPlace(f)
	}
	if f.Header.OpCode.IsControl() {
		return c.handleControl(f)
	}
	return c.handleData(f)
}

func (c *Conn) handleData(f ws.Frame) bool {
	h := f.Header

	if h.OpCode != ws.OpContinuation {
		if c.cont.started {
			c.closeWithProtocolError(ws.NewProtocolError("received new data frame while a fragmented message is in progress"))
			return false
		}
		c.cont = contState{started: true, op: h.OpCode, compressed: h.Rsv1()}
	} else if !c.cont.started {
		c.closeWithProtocolError(ws.NewProtocolError("received continuation frame with no message in progress"))
		return false
	}

	c.cont.buf = append(c.cont.buf, f.Payload...)
	pbytes.Put(f.Payload)

	if int64(len(c.cont.buf)) > c.maxMessageLength() {
		c.closeWithStatus(ws.StatusMessageTooBig, "message too big")
		return false
	}

	if !h.Fin {
		return true
	}

	payload := c.cont.buf
	op := c.cont.op
	compressed := c.cont.compressed
	c.cont = contState{}

	if compressed {
		var err error
		payload, err = inflate(payload)
		if err != nil {
			c.closeWithProtocolError(ws.NewProtocolError("permessage-deflate: " + err.Error()))
			return false
		}
	}

	if cb := c.Handler.OnMessage; cb != nil {
		cb(c, op, payload)
	}
	return true
}

func (c *Conn) handleControl(f ws.Frame) bool {
	switch f.Header.OpCode {
	case ws.OpPing:
		if cb := c.Handler.OnPing; cb != nil {
			cb(c, f.Payload)
		}
		if err := c.SendPong(f.Payload); err != nil {
			c.fail(err)
			return false
		}
		return true

	case ws.OpPong:
		if cb := c.Handler.OnPong; cb != nil {
			cb(c, f.Payload)
		}
		return true

	case ws.OpClose:
		var code ws.StatusCode
		var reason string
		if len(f.Payload) > 0 {
			code, reason = ws.ParseCloseFrameData(f.Payload)
			if err := ws.CheckCloseFrameData(code, reason); err != nil {
				c.closeWithProtocolError(err)
				return false
			}
		}
		c.receivedClose(f.Payload)
		return false
	}
	return true
}

func (c *Conn) receivedClose(payload []byte) {
	c.sentCloseMu.Lock()
	already := c.sentClose
	c.sentCloseMu.Unlock()
	if !already {
		_ = c.SendClose(ws.StatusNormalClosure, "")
	}
	c.finalizeClose(payload)
}

func (c *Conn) fail(err error) {
	if errors.Is(err, io.EOF) {
		c.finalizeClose(nil)
		return
	}
	c.reportError(err)
	c.finalizeClose(nil)
}

func (c *Conn) closeWithProtocolError(err error) {
	c.closeWithStatus(ws.StatusProtocolError, err.Error())
}

func (c *Conn) closeWithStatus(code ws.StatusCode, reason string) {
	_ = c.SendClose(code, reason)
	c.reportError(ws.NewProtocolError(reason))
	c.finalizeClose(nil)
}

func (c *Conn) reportError(err error) {
	if cb := c.Handler.OnError; cb != nil {
		cb(c, err)
		return
	}
	slog.Error("wsconn: connection error", "role", c.Role, "err", err)
}

// finalizeClose marks the connection closed, closes the transport and fires
// OnClose. It is idempotent: only the first call has any effect, so the
// close event is never lost and never duplicated regardless of which of
// Serve's several exit paths triggers it.
func (c *Conn) finalizeClose(payload []byte) {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.transport.Close()
		if cb := c.Handler.OnClose; cb != nil {
			cb(c, payload)
		}
	})
}

// Send writes a complete text or binary message, transparently fragmenting
// it into SocketBufferLength-sized frames and compressing it first when
// PerMessageDeflate is set.
func (c *Conn) Send(op ws.OpCode, payload []byte) error {
	return c.send(op, payload, c.PerMessageDeflate)
}

// SendText is a shortcut for Send(ws.OpText, []byte(s)).
func (c *Conn) SendText(s string) error {
	return c.Send(ws.OpText, []byte(s))
}

// SendBinary is a shortcut for Send(ws.OpBinary, p).
func (c *Conn) SendBinary(p []byte) error {
	return c.Send(ws.OpBinary, p)
}

func (c *Conn) send(op ws.OpCode, payload []byte, compress bool) error {
	// permessage-deflate is skipped for empty payloads: flate.Writer still
	// emits a non-empty empty-block on zero bytes in, which would turn an
	// empty message into a 1-byte compressed frame instead of a 0-byte
	// uncompressed one.
	compress = compress && len(payload) > 0
	if compress {
		deflated, err := deflate(payload)
		if err != nil {
			return err
		}
		payload = deflated
	}

	chunk := c.socketBufferLength()
	if len(payload) == 0 {
		chunk = 1
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for off := 0; ; {
		end := off + chunk
		fin := end >= len(payload)
		if fin {
			end = len(payload)
		}

		frameOp := op
		if off > 0 {
			frameOp = ws.OpContinuation
		}

		f := ws.NewFrame(frameOp, fin, payload[off:end])
		if off == 0 && compress {
			f.Header.Rsv = ws.Rsv(true, false, false)
		}
		if c.Role == RoleClient {
			f = ws.MaskFrameInPlace(f)
		}
		if err := ws.WriteFrame(c.transport, f); err != nil {
			return err
		}
		if fin {
			return nil
		}
		off = end
	}
}

// SendPing sends a ping control frame. payload is truncated to
// ws.MaxControlFramePayloadSize if necessary.
func (c *Conn) SendPing(payload []byte) error {
	return c.sendControl(ws.OpPing, payload)
}

// SendPong sends a pong control frame. payload is truncated to
// ws.MaxControlFramePayloadSize if necessary.
func (c *Conn) SendPong(payload []byte) error {
	return c.sendControl(ws.OpPong, payload)
}

func (c *Conn) sendControl(op ws.OpCode, payload []byte) error {
	if len(payload) > ws.MaxControlFramePayloadSize {
		payload = payload[:ws.MaxControlFramePayloadSize]
	}
	f := ws.NewFrame(op, true, payload)
	if c.Role == RoleClient {
		f = ws.MaskFrameInPlace(f)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.transport, f)
}

// SendClose sends a close frame with the given status code and reason, if
// one has not already been sent on this connection. Calling it more than
// once is a no-op; RFC6455 permits only one close frame per direction.
func (c *Conn) SendClose(code ws.StatusCode, reason string) error {
	c.sentCloseMu.Lock()
	if c.sentClose {
		c.sentCloseMu.Unlock()
		return nil
	}
	c.sentClose = true
	c.sentCloseMu.Unlock()

	c.setState(StateClosing)

	var payload []byte
	if !code.Empty() {
		payload = ws.NewCloseFrameData(code, reason)
	}
	return c.sendControl(ws.OpClose, payload)
}

// Close initiates a normal shutdown: it sends a going-away close frame and
// tears down the connection locally without waiting for the peer's close
// frame in return.
func (c *Conn) Close() error {
	err := c.SendClose(ws.StatusGoingAway, "")
	c.finalizeClose(nil)
	return err
}

// inflate and deflate construct a fresh compressor/decompressor per call
// rather than reusing one across messages, so that no sliding-window
// dictionary state leaks between independently compressed messages.

func inflate(p []byte) ([]byte, error) {
	fr := wsflate.NewReader(bytes.NewReader(p), func(r io.Reader) wsflate.Decompressor {
		return flate.NewReader(r)
	})
	defer fr.Close()
	return io.ReadAll(fr)
}

func deflate(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw := wsflate.NewWriter(&buf, func(w io.Writer) wsflate.Compressor {
		zw, _ := flate.NewWriter(w, flate.DefaultCompression)
		return zw
	})
	if _, err := fw.Write(p); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
