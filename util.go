package ws

import (
	"strings"
	"unsafe"
)

// strToBytes reinterprets str as a []byte without copying. The returned
// slice must not be mutated: it may alias string data, which Go assumes is
// immutable.
func strToBytes(str string) []byte {
	return unsafe.Slice(unsafe.StringData(str), len(str))
}

// btsToString reinterprets bts as a string without copying. Callers must not
// mutate bts afterwards.
func btsToString(bts []byte) string {
	if len(bts) == 0 {
		return ""
	}
	return unsafe.String(&bts[0], len(bts))
}

// strHasToken reports whether header contains token as one of its
// comma-separated, case-insensitive elements (per RFC 7230 list syntax).
func strHasToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
