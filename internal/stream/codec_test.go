package stream

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/biostream/internal/catalog"
)

func TestNewCodec(t *testing.T) {
	for name, want := range map[string]string{"": "protobuf", "protobuf": "protobuf", "json": "json"} {
		c, err := NewCodec(name)
		require.NoError(t, err)
		assert.Equal(t, want, c.Name())
	}
	_, err := NewCodec("xml")
	assert.Error(t, err)
}

func TestCodecRow(t *testing.T) {
	ts := time.Unix(1700000000, 500_000_000)
	values := []float64{5, 0, 10, 0.5, math.NaN(), 0.1}

	for _, c := range []Codec{ProtobufCodec{}, JSONCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.EncodeRow("EmotivLSL_PerformanceMetrics", 7, ts, values)
			require.NoError(t, err)

			msg, err := c.Decode(data)
			require.NoError(t, err)
			f := msg.GetFields()
			assert.Equal(t, KindRow, f["kind"].GetStringValue())
			assert.Equal(t, "EmotivLSL_PerformanceMetrics", f["stream"].GetStringValue())
			assert.Equal(t, 7.0, f["seq"].GetNumberValue())
			assert.InDelta(t, 1700000000.5, f["timestamp"].GetNumberValue(), 1e-3)

			got, err := RowValues(msg)
			require.NoError(t, err)
			require.Len(t, got, len(values))
			assert.Equal(t, []float64{5, 0, 10, 0.5}, got[:4])
			assert.True(t, math.IsNaN(got[4]))
			assert.Equal(t, float64(float32(0.1)), got[5], "values are narrowed to float32")
		})
	}
}

func TestJSONCodecWritesNull(t *testing.T) {
	data, err := JSONCodec{}.EncodeRow("s", 0, time.Unix(0, 0), []float64{math.NaN()})
	require.NoError(t, err)
	assert.Contains(t, string(data), "null")
	assert.NotContains(t, string(data), "NaN")
}

func TestCodecRowOutOfRange(t *testing.T) {
	values := []float64{1e39, -1e39, math.Inf(1), 1}
	want := []float64{math.Inf(1), math.Inf(-1), math.Inf(1), 1}

	for _, c := range []Codec{ProtobufCodec{}, JSONCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.EncodeRow("s", 0, time.Unix(0, 0), values)
			require.NoError(t, err)
			msg, err := c.Decode(data)
			require.NoError(t, err)
			got, err := RowValues(msg)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	data, err := JSONCodec{}.EncodeRow("s", 0, time.Unix(0, 0), values)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"-Infinity"`)
}

func TestRowValuesRejectsStrings(t *testing.T) {
	msg, err := JSONCodec{}.Decode([]byte(`{"kind":"row","values":[1,"high"]}`))
	require.NoError(t, err)
	_, err = RowValues(msg)
	assert.Error(t, err)
}

func TestCodecInfo(t *testing.T) {
	info := Infos(catalog.Default(), testIdentity())[Raw]
	for _, c := range []Codec{ProtobufCodec{}, JSONCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.EncodeInfo(info)
			require.NoError(t, err)
			msg, err := c.Decode(data)
			require.NoError(t, err)

			f := msg.GetFields()
			assert.Equal(t, KindDeclare, f["kind"].GetStringValue())
			assert.Equal(t, "EmotivLSL_EEG", f["name"].GetStringValue())
			assert.Equal(t, 14.0, f["channel_count"].GetNumberValue())
			assert.Equal(t, 128.0, f["nominal_rate"].GetNumberValue())
			assert.Equal(t, "float32", f["format"].GetStringValue())
			chans := f["channels"].GetListValue().GetValues()
			require.Len(t, chans, 14)
			assert.Equal(t, "microvolts", chans[0].GetStructValue().GetFields()["unit"].GetStringValue())

			_, err = RowValues(msg)
			assert.Error(t, err)
		})
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte("{"))
	assert.Error(t, err)
	_, err = ProtobufCodec{}.Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
