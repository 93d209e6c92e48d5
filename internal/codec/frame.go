package codec

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NumChannels is the fixed width of every command frame.
const NumChannels = 8

// Channel bounds.
const (
	ChannelMin = -1.0
	ChannelMax = 1.0
)

// Frame is a complete command vector for the actuator. Index 0 is ch1.
type Frame [NumChannels]float64

// Neutral is the all-zero safe state.
var Neutral Frame

// channelKeys holds the wire names ch1..ch8 in order.
var channelKeys = func() [NumChannels]string {
	var keys [NumChannels]string
	for i := range keys {
		keys[i] = "ch" + strconv.Itoa(i+1)
	}
	return keys
}()

// ChannelKey returns the wire name of the 1-based channel n.
func ChannelKey(n int) string {
	return channelKeys[n-1]
}

// Channel returns the value of the 1-based channel n.
func (f Frame) Channel(n int) float64 {
	return f[n-1]
}

// IsNeutral reports whether every channel is zero.
func (f Frame) IsNeutral() bool {
	return f == Neutral
}

// MarshalJSON writes exactly ch1..ch8 in channel order.
func (f Frame) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(channelKeys[i])
		buf.WriteString(`":`)
		buf.WriteString(formatChannel(v))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a ch1..ch8 object with the same coercion rules as
// inbound control messages.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unable to decode frame")
	}
	if raw == nil {
		return errors.New("frame must be a JSON object")
	}
	*f = frameFromChannels(raw)
	return nil
}

// Clamp bounds v to [ChannelMin, ChannelMax]. NaN maps to zero.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(ChannelMin, math.Min(ChannelMax, v))
}

// formatChannel renders a channel with the shortest exact representation and
// always includes a decimal point so firmware parsers see a float.
func formatChannel(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
