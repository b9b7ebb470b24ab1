// Package stream owns the outbound streams: one declared Sink per signal
// group, the Publisher that validates and forwards rows to them, and the
// concrete sinks (UDP, WebSocket) with their wire codecs.
package stream

import (
	"fmt"

	"github.com/banshee-data/biostream/internal/catalog"
)

// Group identifies one outbound signal group.
type Group int

const (
	Raw Group = iota
	Features
	Metrics

	groupCount
)

// Groups lists every group in publication order.
var Groups = []Group{Raw, Features, Metrics}

func (g Group) String() string {
	switch g {
	case Raw:
		return "raw"
	case Features:
		return "features"
	case Metrics:
		return "metrics"
	}
	return fmt.Sprintf("Group(%d)", int(g))
}

// IrregularRate is the nominal rate of streams published on events.
const IrregularRate = 0

// FormatFloat32 is the only channel format in use.
const FormatFloat32 = "float32"

// ChannelMeta describes one column of a stream.
type ChannelMeta struct {
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Info is a stream declaration.
type Info struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	ChannelCount int           `json:"channel_count"`
	NominalRate  float64       `json:"nominal_rate"`
	Format       string        `json:"format"`
	SourceID     string        `json:"source_id"`
	Manufacturer string        `json:"manufacturer"`
	Channels     []ChannelMeta `json:"channels"`
}

// Irregular reports whether the stream has no fixed sample rate.
func (i Info) Irregular() bool { return i.NominalRate == IrregularRate }

// Identity carries the naming shared by all three streams.
type Identity struct {
	Prefix       string
	SourceID     string
	Manufacturer string
	RawRate      float64
}

// Infos builds the three stream declarations from cat, indexed by Group.
func Infos(cat *catalog.Catalog, id Identity) []Info {
	base := Info{
		Format:       FormatFloat32,
		SourceID:     id.SourceID,
		Manufacturer: id.Manufacturer,
	}

	raw := base
	raw.Name = id.Prefix + "_EEG"
	raw.Type = "EEG"
	raw.NominalRate = id.RawRate
	for _, ch := range cat.RawChannels() {
		raw.Channels = append(raw.Channels, ChannelMeta{Label: ch.Label, Unit: ch.Unit, Type: ch.Type})
	}
	raw.ChannelCount = len(raw.Channels)

	feat := base
	feat.Name = id.Prefix + "_FacialExpression"
	feat.Type = "VALUE"
	feat.NominalRate = IrregularRate
	for _, label := range cat.FeatureLabels() {
		feat.Channels = append(feat.Channels, ChannelMeta{Label: label})
	}
	feat.ChannelCount = len(feat.Channels)

	met := base
	met.Name = id.Prefix + "_PerformanceMetrics"
	met.Type = "VALUE"
	met.NominalRate = IrregularRate
	for _, f := range cat.MetricFields() {
		met.Channels = append(met.Channels, ChannelMeta{Label: f.Label()})
	}
	met.ChannelCount = len(met.Channels)

	return []Info{Raw: raw, Features: feat, Metrics: met}
}
