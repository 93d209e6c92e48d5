package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Decode errors. Both mean "drop this message, keep the connection".
var (
	ErrMalformed      = errors.New("MALFORMED")
	ErrUnknownMessage = errors.New("UNKNOWN_MESSAGE")
)

// Message is one decoded inbound message. The concrete type is one of
// Control, Acquire, Release or Hello.
type Message interface {
	// AuthToken returns the shared-secret token carried by the message.
	AuthToken() string

	isMessage()
}

// Control carries a normalized command frame.
type Control struct {
	Frame Frame
	Token string
	// TS is the client send time in unix seconds, zero when absent.
	TS float64
	// Legacy is set when the frame was built from the {ax, ay} shape.
	Legacy bool
}

// Acquire requests the driver slot.
type Acquire struct {
	Token string
}

// Release gives the driver slot back.
type Release struct {
	Token string
}

// Hello registers a role for the connection. Only "dashboard" is honored.
type Hello struct {
	Role  string
	Token string
}

func (m Control) AuthToken() string { return m.Token }
func (m Acquire) AuthToken() string { return m.Token }
func (m Release) AuthToken() string { return m.Token }
func (m Hello) AuthToken() string   { return m.Token }

func (Control) isMessage() {}
func (Acquire) isMessage() {}
func (Release) isMessage() {}
func (Hello) isMessage()   {}

// Decode parses one inbound message.
//
// Shape precedence: {type:"hello"} first, then acquire, then release, then
// channel frames, then the legacy {ax, ay} pair. Anything else is
// ErrUnknownMessage.
func Decode(data []byte) (Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "invalid JSON: %v", err)
	}
	if raw == nil {
		return nil, errors.Wrap(ErrMalformed, "message must be a JSON object")
	}

	token := stringField(raw, "token")

	if stringField(raw, "type") == "hello" {
		return Hello{Role: stringField(raw, "role"), Token: token}, nil
	}

	if truthy(raw["acquire"]) {
		return Acquire{Token: token}, nil
	}

	if truthy(raw["release"]) {
		return Release{Token: token}, nil
	}

	ts := coerce(raw["ts"])

	if hasChannels(raw) {
		return Control{Frame: frameFromChannels(raw), Token: token, TS: ts}, nil
	}

	// Legacy two-axis clients map onto ch1 and ch2
	axRaw, hasAx := raw["ax"]
	ayRaw, hasAy := raw["ay"]
	if hasAx || hasAy {
		var frame Frame
		frame[0] = Clamp(coerce(axRaw))
		frame[1] = Clamp(coerce(ayRaw))
		return Control{Frame: frame, Token: token, TS: ts, Legacy: true}, nil
	}

	return nil, ErrUnknownMessage
}

// hasChannels reports whether any ch1..ch8 key is present.
func hasChannels(raw map[string]json.RawMessage) bool {
	for _, key := range channelKeys {
		if _, ok := raw[key]; ok {
			return true
		}
	}
	return false
}

// frameFromChannels builds a full frame; absent channels stay zero.
func frameFromChannels(raw map[string]json.RawMessage) Frame {
	var frame Frame
	for i, key := range channelKeys {
		if v, ok := raw[key]; ok {
			frame[i] = Clamp(coerce(v))
		}
	}
	return frame
}

// coerce converts a raw JSON value to a float64 and never fails. Numbers
// pass through, numeric strings are parsed, booleans become 1 or 0 and
// everything else is 0. Out-of-range magnitudes become ±Inf for Clamp.
func coerce(v json.RawMessage) float64 {
	if len(v) == 0 {
		return 0
	}

	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return 0
	}

	var f float64
	switch val := value.(type) {
	case json.Number:
		f = parseFloat(val.String())
	case string:
		f = parseFloat(strings.TrimSpace(val))
	case bool:
		if val {
			f = 1
		}
	default:
		return 0
	}

	if math.IsNaN(f) {
		return 0
	}
	return f
}

// parseFloat returns 0 for unparseable input and keeps ±Inf on overflow.
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return f
}

// truthy reports whether a flag field is set: JSON true or a non-zero number.
func truthy(v json.RawMessage) bool {
	if len(v) == 0 {
		return false
	}
	var value interface{}
	if err := json.Unmarshal(v, &value); err != nil {
		return false
	}
	switch val := value.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	}
	return false
}

// stringField returns a string field or "" when absent or not a string.
func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
