package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCardinalities(t *testing.T) {
	c := Default()
	assert.Equal(t, 14, c.RawCount())
	assert.Len(t, c.RawChannels(), 14)
	assert.Len(t, c.ChannelIDs(), 14)
	assert.Equal(t, 8, c.FeatureCount())
	assert.Len(t, c.FeatureLabels(), 8)
	assert.Equal(t, 20, c.MetricCount())
	assert.Len(t, c.MetricFields(), 20)
}

func TestRawChannelOrder(t *testing.T) {
	want := []string{"AF3", "F7", "F3", "FC5", "T7", "P7", "O1", "O2", "P8", "T8", "FC6", "F4", "F8", "AF4"}
	for i, ch := range Default().RawChannels() {
		if ch.Label != want[i] {
			t.Errorf("channel %d label = %q, want %q", i, ch.Label, want[i])
		}
		if ch.ID != ChannelID(i) {
			t.Errorf("channel %d id = %d", i, ch.ID)
		}
		if ch.Unit != "microvolts" || ch.Type != "EEG" {
			t.Errorf("channel %d unit/type = %q/%q", i, ch.Unit, ch.Type)
		}
	}
}

func TestFeatureLabelsEndWithNeutral(t *testing.T) {
	labels := Default().FeatureLabels()
	assert.Equal(t, "BLINK", labels[0])
	assert.Equal(t, "NEUTRAL", labels[len(labels)-1])
	assert.Equal(t, "SMILE", Smile.String())
	assert.Equal(t, "Feature(42)", Feature(42).String())
}

func TestMetricFieldLayout(t *testing.T) {
	fields := Default().MetricFields()
	assert.Equal(t, "Stress raw score", fields[0].Label())
	assert.Equal(t, "Stress scaled score", fields[3].Label())
	assert.Equal(t, "Engagement boredom min score", fields[5].Label())
	assert.Equal(t, "Interest scaled score", fields[19].Label())

	for i, f := range fields {
		if got := Column(f.Metric, f.Part); got != i {
			t.Errorf("Column(%v, %d) = %d, want %d", f.Metric, f.Part, got, i)
		}
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := Default()
	labels := c.FeatureLabels()
	labels[0] = "changed"
	assert.Equal(t, "BLINK", c.FeatureLabels()[0])

	ids := c.ChannelIDs()
	ids[0] = AF4
	assert.Equal(t, AF3, c.ChannelIDs()[0])
}

func TestMetricKeys(t *testing.T) {
	for m := 0; m < MetricCount; m++ {
		got, ok := MetricByKey(Metric(m).Key())
		assert.True(t, ok)
		assert.Equal(t, Metric(m), got)
	}
	_, ok := MetricByKey("valence")
	assert.False(t, ok)
	assert.Equal(t, "", Metric(-1).Key())
}
