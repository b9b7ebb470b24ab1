package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/features"
)

func TestParseLineUserEvents(t *testing.T) {
	ev, rows, err := parseLine(`{"type":"user_added","user":7}`, 14)
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.Equal(t, UserAdded(7), ev)

	ev, _, err = parseLine(`{"type":"user_removed","user":7}`, 14)
	require.NoError(t, err)
	assert.Equal(t, EventUserRemoved, ev.Kind)
}

func TestParseLineState(t *testing.T) {
	line := `{"type":"state","blink":true,"upper":"Frown","upper_power":0.3,"lower":"laugh","lower_power":0.8,
		"metrics":{"stress":[5,0,10],"interest":[1,1,1],"valence":[9,9,9]}}`
	ev, _, err := parseLine(line, 14)
	require.NoError(t, err)
	require.Equal(t, EventStateUpdated, ev.Kind)

	s := ev.State
	assert.True(t, s.IsBlink())
	assert.False(t, s.IsLeftWink())
	action, power := s.UpperFaceAction()
	assert.Equal(t, features.ActionFrown, action)
	assert.Equal(t, 0.3, power)
	action, _ = s.LowerFaceAction()
	assert.Equal(t, features.ActionOther, action)

	raw, lo, hi := s.MetricParams(catalog.Stress)
	assert.Equal(t, [3]float64{5, 0, 10}, [3]float64{raw, lo, hi})
	raw, lo, hi = s.MetricParams(catalog.Boredom)
	assert.Equal(t, [3]float64{0, 0, 0}, [3]float64{raw, lo, hi})
}

func TestParseLineSamples(t *testing.T) {
	_, rows, err := parseLine(`{"type":"samples","samples":[[1,2,3],[4,5,6]]}`, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, rows)

	_, _, err = parseLine(`{"type":"samples","samples":[[1,2]]}`, 3)
	assert.Error(t, err)
}

func TestParseLineOtherAndMalformed(t *testing.T) {
	ev, _, err := parseLine(`{"type":"battery","level":80}`, 14)
	require.NoError(t, err)
	assert.Equal(t, EventOther, ev.Kind)

	_, _, err = parseLine(`not json`, 14)
	assert.Error(t, err)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "user_added", EventUserAdded.String())
	assert.Equal(t, "state_updated", EventStateUpdated.String())
	assert.Equal(t, "EventKind(9)", EventKind(9).String())
}
