package device

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/features"
)

// Gateway line types.
const (
	msgUserAdded   = "user_added"
	msgUserRemoved = "user_removed"
	msgState       = "state"
	msgSamples     = "samples"
)

// message is one JSON line from the headset gateway.
type message struct {
	Type string `json:"type"`
	User uint32 `json:"user"`

	Blink      bool    `json:"blink"`
	LeftWink   bool    `json:"wink_left"`
	RightWink  bool    `json:"wink_right"`
	Upper      string  `json:"upper"`
	UpperPower float64 `json:"upper_power"`
	Lower      string  `json:"lower"`
	LowerPower float64 `json:"lower_power"`
	// Metrics maps catalog metric keys to [raw, min, max].
	Metrics map[string][3]float64 `json:"metrics"`

	Samples [][]float64 `json:"samples"`
}

var faceActions = map[string]features.FaceAction{
	"":         features.NoAction,
	"neutral":  features.NoAction,
	"surprise": features.ActionSurprise,
	"frown":    features.ActionFrown,
	"clench":   features.ActionClench,
	"smile":    features.ActionSmile,
}

func parseFaceAction(name string) features.FaceAction {
	if a, ok := faceActions[strings.ToLower(name)]; ok {
		return a
	}
	return features.ActionOther
}

// parseLine decodes one gateway line into either an event or a batch of
// sample rows. Unknown message types decode to EventOther.
func parseLine(line string, channels int) (Event, [][]float64, error) {
	var msg message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return NoEvent, nil, fmt.Errorf("failed to unmarshal gateway line: %w", err)
	}

	switch msg.Type {
	case msgUserAdded:
		return UserAdded(msg.User), nil, nil
	case msgUserRemoved:
		return UserRemoved(msg.User), nil, nil
	case msgState:
		snap := &Snapshot{
			Blink:      msg.Blink,
			LeftWink:   msg.LeftWink,
			RightWink:  msg.RightWink,
			Upper:      parseFaceAction(msg.Upper),
			UpperPower: msg.UpperPower,
			Lower:      parseFaceAction(msg.Lower),
			LowerPower: msg.LowerPower,
		}
		for key, p := range msg.Metrics {
			m, ok := catalog.MetricByKey(key)
			if !ok {
				continue
			}
			snap.Metrics[m] = MetricParams{Raw: p[0], Min: p[1], Max: p[2]}
		}
		return StateUpdated(snap), nil, nil
	case msgSamples:
		for i, row := range msg.Samples {
			if len(row) != channels {
				return NoEvent, nil, fmt.Errorf("sample %d has %d channels, want %d", i, len(row), channels)
			}
		}
		return NoEvent, msg.Samples, nil
	default:
		return Event{Kind: EventOther}, nil, nil
	}
}
