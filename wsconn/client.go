package wsconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gobwas/pool/pbufio"

	ws "github.com/tideway-labs/wsrelay"
)

// InvalidURLError is returned by NewClient when the given URL is not a
// ws:// or wss:// URL.
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("wsconn: invalid websocket URL %q: scheme must be ws or wss", e.URL)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Protocols lists the subprotocols offered to the server, in order of
	// preference.
	Protocols []string

	// Deflate offers permessage-deflate during the handshake.
	Deflate bool

	// Header carries additional headers to send with the upgrade request.
	Header http.Header

	// TLSConfig is used for wss:// connections.
	TLSConfig *tls.Config

	// DialTimeout bounds the TCP/TLS dial and the handshake round trip.
	// Zero means no timeout beyond whatever deadline ctx already carries.
	DialTimeout time.Duration

	// Handler receives the resulting connection's lifecycle events.
	Handler Handler

	// MaxMessageLength and SocketBufferLength configure the resulting
	// Conn; see their docs on Conn.
	MaxMessageLength   int64
	SocketBufferLength int

	// AutoConnect, if true, makes NewClient call Connect synchronously
	// before returning.
	AutoConnect bool
}

// Client dials a websocket server and produces a *Conn.
type Client struct {
	url    *url.URL
	config ClientConfig

	// Conn is set once Connect succeeds.
	Conn *Conn
}

// NewClient parses urlstr and, if config.AutoConnect is set, connects
// immediately, blocking until the handshake completes or fails.
func NewClient(ctx context.Context, urlstr string, config ClientConfig) (*Client, error) {
	u, err := url.Parse(urlstr)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, &InvalidURLError{URL: urlstr}
	}

	c := &Client{url: u, config: config}
	if config.AutoConnect {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Connect dials the server, performs the handshake, and starts the
// resulting connection's Serve loop in a new goroutine. It is a no-op to
// call Connect more than once on the same Client.
func (c *Client) Connect(ctx context.Context) error {
	if c.Conn != nil {
		return nil
	}

	if dl := c.config.DialTimeout; dl > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dl)
		defer cancel()
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	req, nonce, err := ws.BuildClientRequest(c.url, c.config.Header, c.config.Protocols, c.config.Deflate)
	if err != nil {
		conn.Close()
		return err
	}

	bw := pbufio.GetWriter(conn, 512)
	defer pbufio.PutWriter(bw)
	if err := req.Write(bw); err != nil {
		conn.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		conn.Close()
		return err
	}

	br := pbufio.GetReader(conn, 512)
	defer pbufio.PutReader(br)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return err
	}

	hs, err := ws.ParseServerResponse(resp, nonce, c.config.Protocols)
	if err != nil {
		conn.Close()
		return err
	}
	conn.SetDeadline(time.Time{})

	wc := NewConn(RoleClient, conn, c.config.Handler)
	wc.PerMessageDeflate = hs.Deflate
	wc.MaxMessageLength = c.config.MaxMessageLength
	wc.SocketBufferLength = c.config.SocketBufferLength
	wc.Handshake = hs

	// http.ReadResponse may have buffered bytes the server sent
	// immediately after the handshake (the first frame, typically); those
	// must be fed to the decoder before br is returned to its pool, or
	// they are lost.
	if n := br.Buffered(); n > 0 {
		leftover := make([]byte, n)
		io.ReadFull(br, leftover)
		wc.dec.Feed(leftover)
	}

	c.Conn = wc
	go wc.Serve()

	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	addr := hostport(c.url)
	if c.url.Scheme == "wss" {
		var d net.Dialer
		if deadline, ok := ctx.Deadline(); ok {
			d.Deadline = deadline
		}
		return tls.DialWithDialer(&d, "tcp", addr, c.config.TLSConfig)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func hostport(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "wss" {
		return u.Host + ":443"
	}
	return u.Host + ":80"
}
