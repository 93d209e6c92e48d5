package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yannnico/rc-car-project/internal/codec"
)

func TestProject(t *testing.T) {
	ts := time.Unix(1700000000, 500000000)

	tests := []struct {
		name  string
		frame codec.Frame
		want  Record
	}{
		{
			name:  "neutral",
			frame: codec.Neutral,
			want: Record{
				Lights: "off", Gear: "low", Dig: "2wd", Swaybar: "activated",
				TS: 1700000000.5,
			},
		},
		{
			name:  "all positive",
			frame: codec.Frame{0.12345, 1, 0.5, 1, 1, 1, 1, 1},
			want: Record{
				Steering: 0.123, Throttle: 1, Winch: 0.5,
				Lights: "on", Gear: "low", Dig: "4wd", Swaybar: "deactivated",
				TS: 1700000000.5,
			},
		},
		{
			name:  "all negative",
			frame: codec.Frame{-0.9996, -1, -0.25, -1, -1, -1, -1, -1},
			want: Record{
				Steering: -1, Throttle: -1, Winch: -0.25,
				Lights: "off", Gear: "high", Dig: "locked rear", Swaybar: "activated",
				TS: 1700000000.5,
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, Project(test.frame, ts))
		})
	}
}

func TestRecordKeys(t *testing.T) {
	data, err := json.Marshal(Project(codec.Neutral, time.Now()))
	require.NoError(t, err)

	var keys map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &keys))

	want := []string{"steering", "throttle", "winch", "lights", "gear", "dig", "swaybar", "ts"}
	assert.Len(t, keys, len(want))
	for _, k := range want {
		assert.Contains(t, keys, k)
	}
}
