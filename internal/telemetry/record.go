package telemetry

import (
	"math"
	"time"

	"github.com/yannnico/rc-car-project/internal/codec"
)

// Record is the dashboard view of one forwarded frame.
type Record struct {
	Steering float64 `json:"steering"`
	Throttle float64 `json:"throttle"`
	Winch    float64 `json:"winch"`
	Lights   string  `json:"lights"`
	Gear     string  `json:"gear"`
	Dig      string  `json:"dig"`
	Swaybar  string  `json:"swaybar"`
	TS       float64 `json:"ts"`
}

// Project maps frame channels onto named vehicle functions.
func Project(frame codec.Frame, ts time.Time) Record {
	return Record{
		Steering: round3(frame.Channel(1)),
		Throttle: round3(frame.Channel(2)),
		Winch:    round3(frame.Channel(3)),
		Swaybar:  swaybar(frame.Channel(4)),
		Lights:   lights(frame.Channel(5)),
		Gear:     gear(frame.Channel(7)),
		Dig:      dig(frame.Channel(8)),
		TS:       float64(ts.UnixNano()) / float64(time.Second),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func swaybar(v float64) string {
	if v > 0 {
		return "deactivated"
	}
	return "activated"
}

func lights(v float64) string {
	if v > 0 {
		return "on"
	}
	return "off"
}

func gear(v float64) string {
	if v < 0 {
		return "high"
	}
	return "low"
}

func dig(v float64) string {
	switch {
	case v < 0:
		return "locked rear"
	case v > 0:
		return "4wd"
	default:
		return "2wd"
	}
}
