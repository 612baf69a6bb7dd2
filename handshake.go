package ws

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/httphead"
)

// RFC6455: the value of the Sec-WebSocket-Key header field MUST be a nonce
// consisting of a randomly selected 16-byte value that has been
// base64-encoded, selected randomly for each connection.
const (
	nonceKeySize = 16
	nonceSize    = 24 // base64.StdEncoding.EncodedLen(nonceKeySize)
	acceptSize   = 28 // base64.StdEncoding.EncodedLen(sha1.Size)
)

// GUID is the protocol-defined magic string concatenated with the client's
// nonce before hashing to produce Sec-WebSocket-Accept.
// See https://tools.ietf.org/html/rfc6455#section-1.3
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var webSocketMagic = []byte(GUID)

const (
	headerUpgrade       = "Upgrade"
	headerConnection    = "Connection"
	headerSecKey        = "Sec-WebSocket-Key"
	headerSecAccept     = "Sec-WebSocket-Accept"
	headerSecVersion    = "Sec-WebSocket-Version"
	headerSecProtocol   = "Sec-WebSocket-Protocol"
	headerSecExtensions = "Sec-WebSocket-Extensions"

	extensionPermessageDeflate = "permessage-deflate"
)

// Errors returned while building or parsing a handshake.
var (
	ErrInvalidURL        = errors.New("ws: URL protocol must be ws or wss")
	ErrBadHandshakeStatus = errors.New("ws: unexpected HTTP status during handshake")
	ErrBadUpgradeHeader   = errors.New("ws: missing or invalid Upgrade header")
	ErrBadConnectionHeader = errors.New("ws: missing or invalid Connection header")
	ErrBadSecAccept       = errors.New("ws: Sec-WebSocket-Accept value does not match the request nonce")
	ErrBadSecKey          = errors.New("ws: missing or invalid Sec-WebSocket-Key header")
)

var sha1Pool sync.Pool

func acquireSha1() hash.Hash {
	if h := sha1Pool.Get(); h != nil {
		return h.(hash.Hash)
	}
	return sha1.New()
}

func releaseSha1(h hash.Hash) {
	h.Reset()
	sha1Pool.Put(h)
}

// NewNonce generates a fresh, base64-encoded, cryptographically random
// Sec-WebSocket-Key value.
func NewNonce() string {
	raw := make([]byte, nonceKeySize)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("ws: rand read error: %s", err))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// Accept computes the Sec-WebSocket-Accept value for the given client
// nonce, as specified by RFC6455 section 1.3:
//
//	base64(sha1(nonce + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
func Accept(nonce string) string {
	sha := acquireSha1()
	defer releaseSha1(sha)

	sha.Write(strToBytes(nonce))
	sha.Write(webSocketMagic)

	var sum [sha1.Size]byte
	return base64.StdEncoding.EncodeToString(sha.Sum(sum[:0]))
}

// CheckAccept reports whether accept is the correct Sec-WebSocket-Accept
// value for nonce.
func CheckAccept(accept, nonce string) bool {
	if len(accept) != acceptSize {
		return false
	}
	return Accept(nonce) == accept
}

// Handshake carries the result of a successful handshake negotiation.
type Handshake struct {
	// Protocol is the subprotocol selected during negotiation, or empty.
	Protocol string
	// Extensions is the set of extension options the server accepted.
	Extensions []httphead.Option
	// Deflate reports whether permessage-deflate was negotiated.
	Deflate bool
}

// BuildClientRequest constructs the HTTP upgrade request for u, per
// spec.md section 4.C. The returned nonce must be kept to validate the
// server's Sec-WebSocket-Accept header with ParseServerResponse.
func BuildClientRequest(u *url.URL, extra http.Header, protocols []string, offerDeflate bool) (*http.Request, string, error) {
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, "", ErrInvalidURL
	}

	req := &http.Request{
		Method:     http.MethodGet,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Host:       u.Host,
	}

	nonce := NewNonce()
	req.Header.Set(headerUpgrade, "websocket")
	req.Header.Set(headerConnection, "Upgrade")
	req.Header.Set(headerSecKey, nonce)
	req.Header.Set(headerSecVersion, "13")
	if len(protocols) > 0 {
		req.Header.Set(headerSecProtocol, strings.Join(protocols, ", "))
	}
	if offerDeflate {
		opt := httphead.Option{Name: []byte(extensionPermessageDeflate)}
		opt.Parameters.Set([]byte("client_max_window_bits"), nil)
		var buf strings.Builder
		httphead.WriteOptions(&buf, []httphead.Option{opt})
		req.Header.Set(headerSecExtensions, buf.String())
	}
	for k, v := range extra {
		req.Header[k] = append(req.Header[k], v...)
	}

	return req, nonce, nil
}

// ParseServerResponse validates resp against the handshake invariants of
// spec.md section 4.C and extracts the negotiated subprotocol/extensions.
func ParseServerResponse(resp *http.Response, nonce string, offeredProtocols []string) (Handshake, error) {
	var hs Handshake

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return hs, fmt.Errorf("%w: got %d", ErrBadHandshakeStatus, resp.StatusCode)
	}
	if !strings.EqualFold(resp.Header.Get(headerUpgrade), "websocket") {
		return hs, ErrBadUpgradeHeader
	}
	if !strings.EqualFold(resp.Header.Get(headerConnection), "Upgrade") {
		return hs, ErrBadConnectionHeader
	}
	if !CheckAccept(resp.Header.Get(headerSecAccept), nonce) {
		return hs, ErrBadSecAccept
	}

	if proto := resp.Header.Get(headerSecProtocol); proto != "" {
		var ok bool
		for _, want := range offeredProtocols {
			if want == proto {
				ok = true
				break
			}
		}
		if !ok {
			return hs, fmt.Errorf("ws: server selected unoffered subprotocol %q", proto)
		}
		hs.Protocol = proto
	}

	for _, v := range resp.Header[headerSecExtensions] {
		opts, ok := httphead.ParseOptions([]byte(v), nil)
		if !ok {
			return hs, fmt.Errorf("ws: malformed %s header", headerSecExtensions)
		}
		hs.Extensions = append(hs.Extensions, opts...)
		for _, o := range opts {
			if string(o.Name) == extensionPermessageDeflate {
				hs.Deflate = true
			}
		}
	}

	return hs, nil
}

// ErrNotHijacker is returned when the http.ResponseWriter passed to Upgrade
// does not support hijacking the underlying connection.
var ErrNotHijacker = errors.New("ws: response writer does not support hijacking")

// Upgrader performs the server side of the handshake described in
// spec.md section 4.C/4.F.
type Upgrader struct {
	// Protocol selects a subprotocol from those offered by the client. The
	// first one for which it returns true is echoed back.
	Protocol func(string) bool

	// Negotiate is called once per extension option offered by the client
	// (e.g. from wsflate.Extension.Negotiate). A non-zero returned option is
	// echoed back in the response's Sec-WebSocket-Extensions header.
	Negotiate func(httphead.Option) (httphead.Option, error)
}

// Upgrade upgrades an HTTP request to a websocket connection. It hijacks the
// underlying net.Conn from w; on success, any bytes the client already sent
// past the blank line terminating the handshake remain buffered in the
// returned *bufio.Reader, satisfying spec.md's "pre-buffered frame bytes"
// requirement.
func (u Upgrader) Upgrade(r *http.Request, w http.ResponseWriter) (conn io.ReadWriteCloser, br *bufio.Reader, hs Handshake, err error) {
	if r.Method != http.MethodGet {
		err = fmt.Errorf("ws: method must be GET, got %s", r.Method)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !strings.EqualFold(r.Header.Get(headerUpgrade), "websocket") {
		err = ErrBadUpgradeHeader
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !strHasToken(r.Header.Get(headerConnection), "upgrade") {
		err = ErrBadConnectionHeader
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	nonce := r.Header.Get(headerSecKey)
	if len(nonce) != nonceSize {
		err = ErrBadSecKey
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Header.Get(headerSecVersion) != "13" {
		w.Header().Set(headerSecVersion, "13")
		err = errors.New("ws: unsupported Sec-WebSocket-Version")
		http.Error(w, err.Error(), http.StatusUpgradeRequired)
		return
	}

	if check := u.Protocol; check != nil {
		for _, v := range r.Header[headerSecProtocol] {
			for _, p := range strings.Split(v, ",") {
				p = strings.TrimSpace(p)
				if check(p) {
					hs.Protocol = p
					break
				}
			}
			if hs.Protocol != "" {
				break
			}
		}
	}

	var acceptExt []httphead.Option
	if negotiate := u.Negotiate; negotiate != nil {
		for _, v := range r.Header[headerSecExtensions] {
			opts, ok := httphead.ParseOptions([]byte(v), nil)
			if !ok {
				err = fmt.Errorf("ws: malformed %s header", headerSecExtensions)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for _, opt := range opts {
				accept, negErr := negotiate(opt)
				if negErr != nil {
					err = negErr
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				if accept.Size() > 0 {
					acceptExt = append(acceptExt, accept)
					if string(accept.Name) == extensionPermessageDeflate {
						hs.Deflate = true
					}
				}
			}
		}
	}
	hs.Extensions = acceptExt

	hj, ok := w.(http.Hijacker)
	if !ok {
		err = ErrNotHijacker
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var rawConn io.ReadWriteCloser
	var rw *bufio.ReadWriter
	rawConn, rw, err = hj.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err = writeUpgradeResponse(rw.Writer, nonce, hs); err != nil {
		rawConn.Close()
		return
	}
	if err = rw.Writer.Flush(); err != nil {
		rawConn.Close()
		return
	}

	return rawConn, rw.Reader, hs, nil
}

func writeUpgradeResponse(w *bufio.Writer, nonce string, hs Handshake) error {
	if _, err := io.WriteString(w, "HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "Upgrade: websocket\r\nConnection: Upgrade\r\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, headerSecAccept+": "+Accept(nonce)+"\r\n"); err != nil {
		return err
	}
	if hs.Protocol != "" {
		if _, err := io.WriteString(w, headerSecProtocol+": "+hs.Protocol+"\r\n"); err != nil {
			return err
		}
	}
	if len(hs.Extensions) > 0 {
		var buf strings.Builder
		httphead.WriteOptions(&buf, hs.Extensions)
		if _, err := io.WriteString(w, headerSecExtensions+": "+buf.String()+"\r\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
