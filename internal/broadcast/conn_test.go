package broadcast

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateReason(t *testing.T) {
	tests := []struct {
		name    string
		reason  string
		wantLen int
	}{
		{"short", "Server full", 11},
		{"exact limit", strings.Repeat("a", maxCloseReason), maxCloseReason},
		{"ascii overflow", strings.Repeat("a", 200), maxCloseReason},
		// 2-byte runes: byte 123 is a continuation byte, so one rune is dropped.
		{"multibyte overflow", strings.Repeat("é", 100), 122},
		// 3-byte runes: 41 runes fill exactly 123 bytes.
		{"multibyte on boundary", strings.Repeat("€", 50), 123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateReason(tt.reason)
			assert.Len(t, got, tt.wantLen)
			assert.True(t, utf8.ValidString(got))
			assert.True(t, strings.HasPrefix(tt.reason, got))
		})
	}
}
