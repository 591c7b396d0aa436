package drone

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "empty", data: nil, want: false},
		{name: "plain ok", data: []byte("ok"), want: false},
		{name: "battery digits", data: []byte("87"), want: false},
		{
			// 7-bit-clean data is text even when full of control bytes.
			name: "seven bit with control bytes",
			data: []byte{0x01, 0x02, 0x03, 'o', 'k'},
			want: false,
		},
		{
			name: "telemetry frame",
			data: bytes.Repeat([]byte{0xcc, 0x00, 0xff}, 10),
			want: true,
		},
		{
			// High bytes but overwhelmingly printable: corrupted text,
			// not telemetry.
			name: "mostly printable with high byte",
			data: append([]byte("battery status nominal"), 0xe9),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBinary(tt.data))
		})
	}
}

// A long frame that is under the printable threshold must be treated as
// binary even though it contains stretches of readable ASCII.
func TestIsBinaryLongMixedFrame(t *testing.T) {
	frame := make([]byte, 200)
	for i := range frame {
		if i%5 < 2 { // 40% printable
			frame[i] = 'A'
		} else {
			frame[i] = 0xf0
		}
	}

	require.True(t, IsBinary(frame))
}

func TestDecodeText(t *testing.T) {
	t.Run("empty payload", func(t *testing.T) {
		_, ok := DecodeText(nil)
		assert.False(t, ok)
	})

	t.Run("utf8 with whitespace", func(t *testing.T) {
		text, ok := DecodeText([]byte("  ok\r\n"))
		require.True(t, ok)
		assert.Equal(t, "ok", text)
	})

	t.Run("latin1 fallback", func(t *testing.T) {
		// 0xe9 alone is invalid UTF-8 and non-ASCII; Latin-1 maps it to é.
		text, ok := DecodeText([]byte{'o', 'k', 0xe9})
		require.True(t, ok)
		assert.Equal(t, "oké", text)
	})
}

func TestIsValidResponse(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"ok", true},
		{"OK", true},
		{"error", true},
		{"error Auto land", true},
		{"error Motor stop", true},
		{"out of range", true},
		{"87", true},
		{"26.5", true},
		{"false", true},
		{"unrecognized but short", true},
		{string(bytes.Repeat([]byte{'x'}, 51)), false},
		{string(bytes.Repeat([]byte{'x'}, 50)), true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidResponse(tt.text))
		})
	}
}
