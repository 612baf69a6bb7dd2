package wsconn

import (
	"bytes"
	"io"

	"github.com/gobwas/pool/pbytes"

	ws "github.com/tideway-labs/wsrelay"
)

// compactThreshold is the minimum number of consumed bytes before Drain
// bothers compacting the buffer; below it, letting append grow the slice is
// cheaper than shifting the remainder down.
const compactThreshold = 4096

// decoder incrementally reassembles frames out of a byte stream that may
// arrive in arbitrarily sized chunks off the wire. It holds one growable
// buffer and a read cursor rather than a queue of pending chunks: Feed
// appends, Drain advances the cursor once a full frame is available, and
// the buffer is compacted in place instead of reallocated once the cursor
// has consumed a large enough share of it.
//
// A decoder is not safe for concurrent use; a Conn owns exactly one.
type decoder struct {
	buf    []byte
	cursor int
}

// Feed appends newly read bytes to the decode buffer.
func (d *decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Drain attempts to decode one full frame out of the buffered bytes. ok is
// false when the buffer holds an incomplete frame; the cursor is left
// untouched in that case, so a following Feed and Drain sees the same
// undecoded bytes again.
//
// The returned frame's Payload is pulled from a pbytes pool. Callers that
// only copy out of it (as Conn's fragment reassembly does) should return it
// with pbytes.Put once done; callers that hand it to user code should not,
// since the pool may hand the same backing array to a later Drain call.
func (d *decoder) Drain() (f ws.Frame, ok bool, err error) {
	avail := d.buf[d.cursor:]
	if len(avail) == 0 {
		return ws.Frame{}, false, nil
	}

	r := bytes.NewReader(avail)
	h, err := ws.ReadHeader(r)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ws.Frame{}, false, nil
		}
		return ws.Frame{}, false, err
	}
	headerLen := len(avail) - r.Len()

	if int64(r.Len()) < h.Length {
		return ws.Frame{}, false, nil
	}

	payload := pbytes.GetLen(int(h.Length))
	if h.Length > 0 {
		copy(payload, avail[headerLen:int64(headerLen)+h.Length])
	}

	d.cursor += headerLen + int(h.Length)
	d.compact()

	return ws.Frame{Header: h, Payload: payload}, true, nil
}

func (d *decoder) compact() {
	if d.cursor < compactThreshold {
		return
	}
	n := copy(d.buf, d.buf[d.cursor:])
	d.buf = d.buf[:n]
	d.cursor = 0
}
