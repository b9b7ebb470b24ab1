// Package catalog describes the fixed column layouts of the three outbound
// streams: raw EEG channels, facial expression flags and performance metric
// fields. The layouts are process-wide constants; their order is part of the
// wire contract and must match the device's channel addressing.
package catalog

import "fmt"

// ChannelID addresses one raw electrode on the device.
type ChannelID int

const (
	AF3 ChannelID = iota
	F7
	F3
	FC5
	T7
	P7
	O1
	O2
	P8
	T8
	FC6
	F4
	F8
	AF4
)

// RawChannel describes one column of the raw stream.
type RawChannel struct {
	ID    ChannelID
	Label string
	Unit  string
	Type  string
}

// Feature is one slot of the facial expression vector.
type Feature int

const (
	Blink Feature = iota
	WinkLeft
	WinkRight
	Surprise
	Frown
	Clench
	Smile
	Neutral

	FeatureCount = int(Neutral) + 1
)

var featureLabels = [FeatureCount]string{
	Blink:     "BLINK",
	WinkLeft:  "WINK_LEFT",
	WinkRight: "WINK_RIGHT",
	Surprise:  "SURPRISE",
	Frown:     "FROWN",
	Clench:    "CLENCH",
	Smile:     "SMILE",
	Neutral:   "NEUTRAL",
}

func (f Feature) String() string {
	if f < 0 || int(f) >= FeatureCount {
		return fmt.Sprintf("Feature(%d)", int(f))
	}
	return featureLabels[f]
}

// Metric is one tracked affective-state estimate.
type Metric int

const (
	Stress Metric = iota
	Boredom
	Relaxation
	Excitement
	Interest

	MetricCount = int(Interest) + 1
)

var metricNames = [MetricCount]string{
	Stress:     "Stress",
	Boredom:    "Engagement boredom",
	Relaxation: "Relaxation",
	Excitement: "Excitement",
	Interest:   "Interest",
}

var metricKeys = [MetricCount]string{
	Stress:     "stress",
	Boredom:    "boredom",
	Relaxation: "relaxation",
	Excitement: "excitement",
	Interest:   "interest",
}

// Key is the metric's short machine name used in device messages.
func (m Metric) Key() string {
	if m < 0 || int(m) >= MetricCount {
		return ""
	}
	return metricKeys[m]
}

// MetricByKey resolves a short machine name.
func MetricByKey(key string) (Metric, bool) {
	for i, k := range metricKeys {
		if k == key {
			return Metric(i), true
		}
	}
	return 0, false
}

func (m Metric) String() string {
	if m < 0 || int(m) >= MetricCount {
		return fmt.Sprintf("Metric(%d)", int(m))
	}
	return metricNames[m]
}

// MetricPart is one member of the (raw, min, max, scaled) quadruplet.
type MetricPart int

const (
	Raw MetricPart = iota
	Min
	Max
	Scaled

	MetricPartCount = int(Scaled) + 1
)

var metricPartNames = [MetricPartCount]string{
	Raw:    "raw score",
	Min:    "min score",
	Max:    "max score",
	Scaled: "scaled score",
}

// MetricField is one column of the metrics stream.
type MetricField struct {
	Metric Metric
	Part   MetricPart
}

// Label returns the column label, e.g. "Stress scaled score".
func (f MetricField) Label() string {
	return f.Metric.String() + " " + metricPartNames[f.Part]
}

// Column returns the index of (m, p) in the flattened metrics row.
func Column(m Metric, p MetricPart) int {
	return int(m)*MetricPartCount + int(p)
}

const (
	unitMicrovolts = "microvolts"
	typeEEG        = "EEG"
)

var rawChannels = []RawChannel{
	{AF3, "AF3", unitMicrovolts, typeEEG},
	{F7, "F7", unitMicrovolts, typeEEG},
	{F3, "F3", unitMicrovolts, typeEEG},
	{FC5, "FC5", unitMicrovolts, typeEEG},
	{T7, "T7", unitMicrovolts, typeEEG},
	{P7, "P7", unitMicrovolts, typeEEG},
	{O1, "O1", unitMicrovolts, typeEEG},
	{O2, "O2", unitMicrovolts, typeEEG},
	{P8, "P8", unitMicrovolts, typeEEG},
	{T8, "T8", unitMicrovolts, typeEEG},
	{FC6, "FC6", unitMicrovolts, typeEEG},
	{F4, "F4", unitMicrovolts, typeEEG},
	{F8, "F8", unitMicrovolts, typeEEG},
	{AF4, "AF4", unitMicrovolts, typeEEG},
}

// Catalog is an immutable view over the stream layouts. The zero value is
// not useful; use Default.
type Catalog struct {
	raw     []RawChannel
	ids     []ChannelID
	metrics []MetricField
}

var defaultCatalog = build()

func build() *Catalog {
	c := &Catalog{
		raw: rawChannels,
		ids: make([]ChannelID, len(rawChannels)),
	}
	for i, ch := range rawChannels {
		c.ids[i] = ch.ID
	}
	for m := 0; m < MetricCount; m++ {
		for p := 0; p < MetricPartCount; p++ {
			c.metrics = append(c.metrics, MetricField{Metric: Metric(m), Part: MetricPart(p)})
		}
	}
	return c
}

// Default returns the process-wide catalog.
func Default() *Catalog { return defaultCatalog }

// RawChannels returns a copy of the raw channel layout.
func (c *Catalog) RawChannels() []RawChannel {
	return append([]RawChannel(nil), c.raw...)
}

// ChannelIDs returns the device addresses of the raw channels in column order.
func (c *Catalog) ChannelIDs() []ChannelID {
	return append([]ChannelID(nil), c.ids...)
}

// RawCount is the raw stream's column count.
func (c *Catalog) RawCount() int { return len(c.raw) }

// FeatureLabels returns the facial expression column labels.
func (c *Catalog) FeatureLabels() []string {
	return append([]string(nil), featureLabels[:]...)
}

// FeatureCount is the facial expression stream's column count.
func (c *Catalog) FeatureCount() int { return FeatureCount }

// MetricFields returns the metrics stream's column layout.
func (c *Catalog) MetricFields() []MetricField {
	return append([]MetricField(nil), c.metrics...)
}

// MetricCount is the metrics stream's column count.
func (c *Catalog) MetricCount() int { return len(c.metrics) }
