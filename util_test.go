package ws

import "testing"

func TestStrToBytes(t *testing.T) {
	for _, s := range []string{"", "a", "websocket", "the quick brown fox"} {
		if got := string(strToBytes(s)); got != s {
			t.Errorf("strToBytes(%q) round-trips to %q", s, got)
		}
	}
}

func TestBtsToString(t *testing.T) {
	for _, s := range []string{"", "a", "websocket", "the quick brown fox"} {
		b := []byte(s)
		if got := btsToString(b); got != s {
			t.Errorf("btsToString(%q) round-trips to %q", b, got)
		}
	}
}
