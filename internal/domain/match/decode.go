package match

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Decode parses one frame. Only a frame that is not a JSON object or lacks a
// type is an error. Payload fields are coerced leniently: numbers may arrive
// as strings and the other way round, and a field that cannot be coerced
// keeps its default.
func Decode(frame []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	kind, _ := raw["type"].(string)
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrDecode)
	}
	data, _ := raw["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	h := Header{kind: Type(kind), data: data}
	switch ts := raw["timestamp"].(type) {
	case string:
		h.stamp = ts
	case nil:
	default:
		h.stamp = fmt.Sprint(ts)
	}
	h.at = parseStamp(h.stamp)
	return FromHeader(h), nil
}

// FromEnvelope builds an event from an already parsed envelope.
func FromEnvelope(env Envelope) Event {
	data := env.Data
	if data == nil {
		data = map[string]any{}
	}
	h := Header{kind: Type(env.Type), stamp: env.Timestamp, data: data}
	h.at = parseStamp(h.stamp)
	return FromHeader(h)
}

// FromHeader selects the variant for h and fills it from the payload.
func FromHeader(h Header) Event {
	clock := Clock{Quarter: DefaultQuarter, TimeRemaining: DefaultTimeRemaining}
	switch h.kind {
	case TypeGameStart:
		ev := GameStart{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeQuarterStart:
		ev := QuarterStart{Header: h, Clock: clock}
		coerce(h.data, &ev)
		ev.Clock = ev.Clock.withDefaults()
		return ev
	case TypeGameState:
		ev := GameState{Header: h, Clock: clock}
		coerce(h.data, &ev)
		ev.Clock = ev.Clock.withDefaults()
		return ev
	case TypeScore:
		ev := Score{Header: h, Clock: clock}
		coerce(h.data, &ev)
		ev.Clock = ev.Clock.withDefaults()
		return ev
	case TypeMiss:
		ev := Miss{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeBlock:
		ev := Block{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeFoul:
		ev := Foul{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeFreeThrow:
		ev := FreeThrow{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeTurnover:
		ev := Turnover{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeQuarterEnd:
		ev := QuarterEnd{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeGameEnd:
		ev := GameEnd{Header: h}
		coerce(h.data, &ev)
		return ev
	case TypeError:
		ev := ErrorReport{Header: h}
		coerce(h.data, &ev)
		return ev
	default:
		return Unknown{Header: h}
	}
}

// maxWireInt bounds integers decoded from floats. Anything larger is noise
// on a basketball feed and would overflow the conversion.
const maxWireInt = math.MaxInt32

// withDefaults treats a zero quarter or blank clock as absent.
func (c Clock) withDefaults() Clock {
	if c.Quarter <= 0 {
		c.Quarter = DefaultQuarter
	}
	c.TimeRemaining = strings.TrimSpace(c.TimeRemaining)
	if c.TimeRemaining == "" {
		c.TimeRemaining = DefaultTimeRemaining
	}
	return c
}

// clampInt keeps float inputs for integer fields inside the int range. NaN
// is rejected so the field keeps its default.
func clampInt(_ reflect.Type, to reflect.Type, data any) (any, error) {
	f, ok := data.(float64)
	if !ok {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: NaN for %s", ErrDecode, to)
	}
	return math.Max(-maxWireInt, math.Min(maxWireInt, f)), nil
}

// coerce decodes data into out with weak typing. Fields that fail keep the
// value out already holds, so the per-field errors are not interesting.
func coerce(data map[string]any, out any) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(clampInt),
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return
	}
	_ = dec.Decode(data)
}

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
