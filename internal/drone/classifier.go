package drone

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// The drone shares its socket/port space between command acknowledgments
// and binary state frames, so every inbound datagram has to be sniffed
// before it may be delivered to a waiting command.

// knownResponses are the tokens the firmware is known to emit on the
// command channel. Matching is case-insensitive substring.
var knownResponses = []string{
	"ok", "error", "timeout", "out of range", "false", "true",
}

const maxPlausibleResponseLen = 50

// minPrintableFraction is the share of printable ASCII bytes below which
// a non-7-bit datagram is treated as a telemetry/state frame.
const minPrintableFraction = 0.70

// IsBinary reports whether a received datagram is a binary state frame
// rather than command-channel text. A 7-bit-clean payload is always
// text; otherwise the payload is binary when fewer than 70% of its
// bytes are printable ASCII.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sevenBit := true
	printable := 0
	for _, b := range data {
		if b > 127 {
			sevenBit = false
		}
		if b >= 32 && b <= 126 {
			printable++
		}
	}
	if sevenBit {
		return false
	}

	return float64(printable)/float64(len(data)) < minPrintableFraction
}

// DecodeText attempts to decode a datagram as UTF-8, then ASCII, then
// Latin-1, stopping at the first successful decode. The result is
// trimmed of surrounding whitespace. ok is false only when no encoding
// applies, which for this chain means an empty payload (Latin-1 accepts
// any byte sequence).
func DecodeText(data []byte) (text string, ok bool) {
	if len(data) == 0 {
		return "", false
	}

	if utf8.Valid(data) {
		return strings.TrimSpace(string(data)), true
	}

	ascii := true
	for _, b := range data {
		if b > 127 {
			ascii = false
			break
		}
	}
	if ascii {
		return strings.TrimSpace(string(data)), true
	}

	// Latin-1: every byte maps directly to the code point of the same value.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return strings.TrimSpace(string(runes)), true
}

// IsValidResponse reports whether decoded text is a plausible command
// response worth delivering to the waiting command. Accepted: pure
// numerics (battery etc.), floats (temperature etc.), anything carrying
// a known response token, and - as a catch-all - any short string.
//
// The short-string catch-all knowingly accepts truncated or corrupted
// noise as a legitimate reply; the device emits free-form diagnostics
// (e.g. "error Auto land") that no closed token list covers, so a
// stricter rule would reject real responses.
func IsValidResponse(text string) bool {
	if text == "" {
		return false
	}

	if isDigits(text) {
		return true
	}

	lower := strings.ToLower(text)
	for _, token := range knownResponses {
		if strings.Contains(lower, token) {
			return true
		}
	}

	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return true
	}

	return len(text) <= maxPlausibleResponseLen
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
