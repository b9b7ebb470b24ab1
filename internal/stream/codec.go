package stream

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message kinds carried in the "kind" field of every encoded message.
const (
	KindDeclare = "declare"
	KindRow     = "row"
)

// Codec encodes declarations and rows for a transport. Both codecs share one
// message shape, a protobuf Struct; they differ only in the wire form.
type Codec interface {
	Name() string
	// Binary reports whether encoded messages are binary rather than text.
	Binary() bool
	EncodeInfo(info Info) ([]byte, error)
	EncodeRow(stream string, seq uint64, ts time.Time, values []float64) ([]byte, error)
	Decode(data []byte) (*structpb.Struct, error)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "protobuf":
		return ProtobufCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// ProtobufCodec encodes messages as binary google.protobuf.Struct. NaN
// values survive the round trip.
type ProtobufCodec struct{}

func (ProtobufCodec) Name() string { return "protobuf" }
func (ProtobufCodec) Binary() bool { return true }

func (ProtobufCodec) EncodeInfo(info Info) ([]byte, error) {
	return proto.Marshal(infoStruct(info))
}

func (ProtobufCodec) EncodeRow(stream string, seq uint64, ts time.Time, values []float64) ([]byte, error) {
	return proto.Marshal(rowStruct(stream, seq, ts, values, false))
}

func (ProtobufCodec) Decode(data []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &s, nil
}

// JSONCodec encodes messages as protojson text. JSON has no NaN or
// infinity, so NaN values are written as null and infinities as the strings
// "Infinity" and "-Infinity". Values beyond float32 range become infinite.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) EncodeInfo(info Info) ([]byte, error) {
	return protojson.Marshal(infoStruct(info))
}

func (JSONCodec) EncodeRow(stream string, seq uint64, ts time.Time, values []float64) ([]byte, error) {
	return protojson.Marshal(rowStruct(stream, seq, ts, values, true))
}

func (JSONCodec) Decode(data []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &s, nil
}

func infoStruct(info Info) *structpb.Struct {
	channels := make([]*structpb.Value, len(info.Channels))
	for i, ch := range info.Channels {
		channels[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"label": structpb.NewStringValue(ch.Label),
			"unit":  structpb.NewStringValue(ch.Unit),
			"type":  structpb.NewStringValue(ch.Type),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":          structpb.NewStringValue(KindDeclare),
		"name":          structpb.NewStringValue(info.Name),
		"type":          structpb.NewStringValue(info.Type),
		"channel_count": structpb.NewNumberValue(float64(info.ChannelCount)),
		"nominal_rate":  structpb.NewNumberValue(info.NominalRate),
		"format":        structpb.NewStringValue(info.Format),
		"source_id":     structpb.NewStringValue(info.SourceID),
		"manufacturer":  structpb.NewStringValue(info.Manufacturer),
		"channels":      structpb.NewListValue(&structpb.ListValue{Values: channels}),
	}}
}

const (
	jsonPosInf = "Infinity"
	jsonNegInf = "-Infinity"
)

// rowStruct narrows values to float32 precision, the declared channel format.
// With jsonSafe set, non-finite values are replaced by null or a string.
func rowStruct(stream string, seq uint64, ts time.Time, values []float64, jsonSafe bool) *structpb.Struct {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		n := float64(float32(v))
		switch {
		case !jsonSafe:
			list[i] = structpb.NewNumberValue(n)
		case math.IsNaN(n):
			list[i] = structpb.NewNullValue()
		case math.IsInf(n, 1):
			list[i] = structpb.NewStringValue(jsonPosInf)
		case math.IsInf(n, -1):
			list[i] = structpb.NewStringValue(jsonNegInf)
		default:
			list[i] = structpb.NewNumberValue(n)
		}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":      structpb.NewStringValue(KindRow),
		"stream":    structpb.NewStringValue(stream),
		"seq":       structpb.NewNumberValue(float64(seq)),
		"timestamp": structpb.NewNumberValue(float64(ts.UnixNano()) / 1e9),
		"values":    structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

// RowValues extracts the values of a decoded row. Null decodes to NaN and
// the strings "Infinity" and "-Infinity" to the matching infinity.
func RowValues(msg *structpb.Struct) ([]float64, error) {
	if k := msg.GetFields()["kind"].GetStringValue(); k != KindRow {
		return nil, fmt.Errorf("message kind %q is not a row", k)
	}
	list := msg.GetFields()["values"].GetListValue().GetValues()
	out := make([]float64, len(list))
	for i, v := range list {
		switch k := v.GetKind().(type) {
		case *structpb.Value_NullValue:
			out[i] = math.NaN()
		case *structpb.Value_StringValue:
			switch k.StringValue {
			case jsonPosInf:
				out[i] = math.Inf(1)
			case jsonNegInf:
				out[i] = math.Inf(-1)
			default:
				return nil, fmt.Errorf("value %d: unexpected string %q", i, k.StringValue)
			}
		default:
			out[i] = v.GetNumberValue()
		}
	}
	return out, nil
}
