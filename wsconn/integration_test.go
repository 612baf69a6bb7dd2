package wsconn

import (
	"net"
	"testing"
	"time"

	ws "github.com/tideway-labs/wsrelay"
)

// TestConnDeflateRoundTrip exercises a full client/server pair wired
// directly over net.Pipe with permessage-deflate negotiated on both ends,
// the same way a real handshake would leave them: Send compresses, the
// peer's Serve loop decompresses and reassembles, and OnMessage sees the
// original bytes back.
func TestConnDeflateRoundTrip(t *testing.T) {
	clientTransport, serverTransport := net.Pipe()

	const payload = "hello, deflate!"

	serverMsgs := make(chan string, 1)
	serverConn := NewConn(RoleServer, serverTransport, Handler{
		OnMessage: func(c *Conn, op ws.OpCode, p []byte) {
			serverMsgs <- string(p)
		},
	})
	serverConn.PerMessageDeflate = true
	go serverConn.Serve()
	defer serverConn.Close()

	clientOpen := make(chan struct{})
	clientConn := NewConn(RoleClient, clientTransport, Handler{
		OnOpen: func(c *Conn) {
			close(clientOpen)
		},
	})
	clientConn.PerMessageDeflate = true
	go clientConn.Serve()
	defer clientConn.Close()

	<-clientOpen

	if err := clientConn.SendText(payload); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case got := <-serverMsgs:
		if got != payload {
			t.Fatalf("got %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// TestConnFragmentedMessage checks that a message split across several
// Send calls' worth of wire frames (forced via a tiny SocketBufferLength)
// is reassembled into a single OnMessage callback.
func TestConnFragmentedMessage(t *testing.T) {
	clientTransport, serverTransport := net.Pipe()

	const payload = "this message is long enough to span several small frames"

	serverMsgs := make(chan string, 1)
	serverConn := NewConn(RoleServer, serverTransport, Handler{
		OnMessage: func(c *Conn, op ws.OpCode, p []byte) {
			serverMsgs <- string(p)
		},
	})
	go serverConn.Serve()
	defer serverConn.Close()

	clientOpen := make(chan struct{})
	clientConn := NewConn(RoleClient, clientTransport, Handler{
		OnOpen: func(c *Conn) {
			close(clientOpen)
		},
	})
	clientConn.SocketBufferLength = 8
	go clientConn.Serve()
	defer clientConn.Close()

	<-clientOpen

	if err := clientConn.SendText(payload); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case got := <-serverMsgs:
		if got != payload {
			t.Fatalf("got %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// TestConnCloseHandshake checks that a local Close provokes the peer's
// OnClose and that the peer settles in StateClosed.
func TestConnCloseHandshake(t *testing.T) {
	clientTransport, serverTransport := net.Pipe()

	serverClosed := make(chan struct{})
	serverConn := NewConn(RoleServer, serverTransport, Handler{
		OnClose: func(c *Conn, payload []byte) {
			close(serverClosed)
		},
	})
	go serverConn.Serve()

	clientOpen := make(chan struct{})
	clientConn := NewConn(RoleClient, clientTransport, Handler{
		OnOpen: func(c *Conn) {
			close(clientOpen)
		},
	})
	go clientConn.Serve()

	<-clientOpen

	if err := clientConn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-serverClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer close")
	}

	if got := serverConn.ReadyState(); got != StateClosed {
		t.Fatalf("server ReadyState() = %v, want %v", got, StateClosed)
	}
}

// TestServerClosesOnUnmaskedFrame checks that a server-side connection
// rejects an unmasked incoming frame with the exact close reason the
// masking-direction violation is supposed to carry on the wire.
func TestServerClosesOnUnmaskedFrame(t *testing.T) {
	clientTransport, serverTransport := net.Pipe()

	serverClosed := make(chan struct{})
	serverConn := NewConn(RoleServer, serverTransport, Handler{
		OnClose: func(c *Conn, payload []byte) {
			close(serverClosed)
		},
	})
	go serverConn.Serve()
	defer serverConn.Close()

	// A compliant client always masks outbound frames; send one
	// deliberately unmasked to provoke the server's masking-direction
	// check.
	if err := ws.WriteFrame(clientTransport, ws.NewTextFrame("hi")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	closeFrame, err := ws.ReadFrame(clientTransport)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if closeFrame.Header.OpCode != ws.OpClose {
		t.Fatalf("got opcode %v, want OpClose", closeFrame.Header.OpCode)
	}
	_, reason := ws.ParseCloseFrameData(closeFrame.Payload)
	if reason != "unmasked frame" {
		t.Fatalf("close reason = %q, want %q", reason, "unmasked frame")
	}

	select {
	case <-serverClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server OnClose")
	}
}

// TestClientClosesOnMaskedFrame is the mirror case: a client-side
// connection must reject an incoming frame that is masked, since RFC6455
// requires the server to never mask outbound frames.
func TestClientClosesOnMaskedFrame(t *testing.T) {
	clientTransport, serverTransport := net.Pipe()

	clientClosed := make(chan struct{})
	clientConn := NewConn(RoleClient, clientTransport, Handler{
		OnClose: func(c *Conn, payload []byte) {
			close(clientClosed)
		},
	})
	go clientConn.Serve()
	defer clientConn.Close()

	// A compliant server never masks outbound frames; send one
	// deliberately masked to provoke the client's masking-direction
	// check.
	if err := ws.WriteFrame(serverTransport, ws.MaskFrameInPlace(ws.NewTextFrame("hi"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	closeFrame, err := ws.ReadFrame(serverTransport)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	// The client masks its own close frame; ReadFrame leaves it masked.
	closeFrame = ws.UnmaskFrameInPlace(closeFrame)
	if closeFrame.Header.OpCode != ws.OpClose {
		t.Fatalf("got opcode %v, want OpClose", closeFrame.Header.OpCode)
	}
	_, reason := ws.ParseCloseFrameData(closeFrame.Payload)
	if reason != "masked frame" {
		t.Fatalf("close reason = %q, want %q", reason, "masked frame")
	}

	select {
	case <-clientClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client OnClose")
	}
}
