package wsflate

import (
	"bytes"
	"compress/flate"
	"io"
	"io/ioutil"
	"testing"

	"github.com/gobwas/httphead"
)

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, func(w io.Writer) Compressor {
		fw, _ := flate.NewWriter(w, 9)
		return fw
	})
	data := []byte("hello, flate!")
	for _, p := range bytes.SplitAfter(data, []byte{','}) {
		w.Write(p)
		w.Flush()
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected Close() error: %v", err)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("unexpected Writer error: %v", err)
	}

	r := NewReader(&buf, func(r io.Reader) Decompressor {
		return flate.NewReader(r)
	})
	act, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected Reader error: %v", err)
	}
	if exp := data; !bytes.Equal(act, exp) {
		t.Fatalf("unexpected bytes: %#q; want %#q", act, exp)
	}
}

func TestExtensionNegotiation(t *testing.T) {
	e := Extension{
		Parameters: Parameters{
			ServerNoContextTakeover: true,
			ClientNoContextTakeover: true,
			ServerMaxWindowBits:     10,
		},
	}

	offers := []httphead.Option{
		(Parameters{
			ServerNoContextTakeover: true,
			ClientNoContextTakeover: true,
			ClientMaxWindowBits:     8,
			ServerMaxWindowBits:     12,
		}).Option(),
	}

	var accept httphead.Option
	for _, opt := range offers {
		a, err := e.Negotiate(opt)
		if err != nil {
			t.Fatalf("negotiate error: %v", err)
		}
		if a.Size() > 0 {
			accept = a
		}
	}
	if accept.Size() > 0 {
		t.Fatalf("offer with server_max_window_bits=12 should have been declined against a want of 10")
	}
	if _, ok := e.Accepted(); ok {
		t.Fatalf("expected extension not to be accepted")
	}

	e.Reset()
	accept, err := e.Negotiate((Parameters{
		ServerNoContextTakeover: true,
		ClientNoContextTakeover: true,
	}).Option())
	if err != nil {
		t.Fatalf("negotiate error: %v", err)
	}
	if accept.Size() == 0 {
		t.Fatalf("expected extension to be accepted")
	}
	p, ok := e.Accepted()
	if !ok {
		t.Fatalf("expected Accepted() to report true")
	}
	t.Logf("accepted params: %+v", p)
}
