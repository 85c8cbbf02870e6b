package wire

import (
	"fmt"
	"math"

	"github.com/bytedance/sonic"
)

// Sentinel strings carrying the values JSON cannot express.
const (
	sentinelNaN         = "NaN"
	sentinelInfinity    = "Infinity"
	sentinelNegInfinity = "-Infinity"
	sentinelUndefined   = "undefined"
)

// EncodeText renders a wire value as JSON text. Non-finite numbers and
// undefined are replaced by their sentinel strings; timestamps are rendered
// through FormatTime.
func EncodeText(v Value) (string, error) {
	b, err := sonic.Marshal(jsonValue(v))
	if err != nil {
		return "", fmt.Errorf("wire: encode: %w", err)
	}
	return string(b), nil
}

// jsonValue lowers a Value to the any-tree sonic serializes directly.
func jsonValue(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindUndefined:
		return sentinelUndefined
	case KindBool:
		return v.b
	case KindNumber:
		switch {
		case math.IsNaN(v.num):
			return sentinelNaN
		case math.IsInf(v.num, 1):
			return sentinelInfinity
		case math.IsInf(v.num, -1):
			return sentinelNegInfinity
		default:
			return v.num
		}
	case KindString:
		return v.str
	case KindHandle:
		return v.h
	case KindTime:
		return FormatTime(v.t)
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = jsonValue(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = jsonValue(e)
		}
		return out
	default:
		return nil
	}
}

// DecodeText parses JSON text produced by the native side back into the
// dynamic representation. A reviver pass maps the four sentinel strings to
// NaN, +Inf, -Inf and Undefined; every other value passes through
// unchanged.
func DecodeText(text string) (any, error) {
	var raw any
	if err := sonic.UnmarshalString(text, &raw); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	return revive(raw), nil
}

func revive(v any) any {
	switch x := v.(type) {
	case string:
		switch x {
		case sentinelNaN:
			return math.NaN()
		case sentinelInfinity:
			return math.Inf(1)
		case sentinelNegInfinity:
			return math.Inf(-1)
		case sentinelUndefined:
			return Undefined
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = revive(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = revive(e)
		}
		return x
	default:
		return v
	}
}
