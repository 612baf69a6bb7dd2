package wsconn

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"

	ws "github.com/tideway-labs/wsrelay"
)

// InvalidOptionsError is returned when a SecureServer is missing required
// TLS credentials or they cannot be loaded.
type InvalidOptionsError struct {
	Reason string
}

func (e *InvalidOptionsError) Error() string {
	return "wsconn: invalid server options: " + e.Reason
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Upgrader negotiates subprotocol and extensions during the HTTP
	// upgrade. The zero value accepts no subprotocol and no extensions.
	Upgrader ws.Upgrader

	// HTTPHandler serves any request that is not a websocket upgrade.
	// Defaults to responding 200 OK to everything.
	HTTPHandler http.Handler

	// HealthCheckPath, if non-empty, makes the server respond 200 OK with
	// body "OK\n" to GET requests at this path, ahead of HTTPHandler.
	HealthCheckPath string

	// OnConnection is called, on the request's own goroutine, once a Conn
	// has been constructed and registered but before its Serve loop
	// starts.
	OnConnection func(c *Conn, r *http.Request)

	// Handler is attached to every accepted connection.
	Handler Handler

	MaxMessageLength   int64
	SocketBufferLength int
}

// Server accepts websocket connections alongside ordinary HTTP traffic on
// the same listener.
type Server struct {
	config   ServerConfig
	Registry *Registry

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a Server from config. Registered connections can be
// inspected and closed through the returned Server's Registry field.
func NewServer(config ServerConfig) *Server {
	if config.HTTPHandler == nil {
		config.HTTPHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	s := &Server{
		config:   config,
		Registry: NewRegistry(),
	}
	s.httpServer = &http.Server{Handler: http.HandlerFunc(s.serveHTTP)}
	return s
}

// ListenAndServe listens on addr and serves upgrade and plain HTTP
// requests until Close is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return s.httpServer.Serve(ln)
}

// Close stops accepting new connections and closes every currently
// registered connection, in the order they were accepted.
func (s *Server) Close() error {
	var err error
	if s.listener != nil {
		err = s.httpServer.Close()
	}
	for _, c := range s.Registry.Snapshot() {
		c.Close()
	}
	return err
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if s.config.HealthCheckPath != "" && r.Method == http.MethodGet && r.URL.Path == s.config.HealthCheckPath {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK\n"))
		return
	}
	if r.Header.Get("Upgrade") == "" {
		s.config.HTTPHandler.ServeHTTP(w, r)
		return
	}

	transport, br, hs, err := s.config.Upgrader.Upgrade(r, w)
	if err != nil {
		return
	}

	wc := NewConn(RoleServer, transport, s.config.Handler)
	wc.PerMessageDeflate = hs.Deflate
	wc.MaxMessageLength = s.config.MaxMessageLength
	wc.SocketBufferLength = s.config.SocketBufferLength
	wc.Request = r
	wc.Handshake = hs

	// The hijacked bufio.Reader may already hold bytes the peer sent
	// right after the 101 response; feed them to the decoder before
	// handing the raw transport to Serve, or they are lost.
	if br != nil {
		if n := br.Buffered(); n > 0 {
			leftover := make([]byte, n)
			io.ReadFull(br, leftover)
			wc.dec.Feed(leftover)
		}
	}

	id := s.Registry.Add(wc)
	defer s.Registry.Remove(id)

	if cb := s.config.OnConnection; cb != nil {
		cb(wc, r)
	}

	wc.Serve()
}

// SecureServer is a Server that terminates TLS before the websocket
// handshake runs.
type SecureServer struct {
	*Server

	CertFile string
	KeyFile  string
}

// NewSecureServer builds a SecureServer. certFile and keyFile must both be
// non-empty paths to a certificate and key readable by crypto/tls.
func NewSecureServer(config ServerConfig, certFile, keyFile string) (*SecureServer, error) {
	if certFile == "" || keyFile == "" {
		return nil, &InvalidOptionsError{Reason: "certFile and keyFile are required"}
	}
	if _, err := tls.LoadX509KeyPair(certFile, keyFile); err != nil {
		return nil, &InvalidOptionsError{Reason: "invalid certFile or keyFile: " + err.Error()}
	}
	return &SecureServer{
		Server:   NewServer(config),
		CertFile: certFile,
		KeyFile:  keyFile,
	}, nil
}

// ListenAndServeTLS listens on addr and serves TLS-terminated upgrade and
// HTTP requests until Close is called.
func (s *SecureServer) ListenAndServeTLS(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return s.httpServer.ServeTLS(ln, s.CertFile, s.KeyFile)
}
