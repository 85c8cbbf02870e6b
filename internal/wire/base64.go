package wire

import (
	"errors"
	"fmt"
	"strings"
)

// The two Base64 alphabets. Encoding picks one; decoding accepts symbols
// from either, so a payload encoded URL-safe elsewhere still decodes.
const (
	base64Std = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	base64URL = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

// ErrBase64 reports malformed Base64 input. It is a structural error.
var ErrBase64 = errors.New("wire: malformed base64")

// EncodeBase64 encodes bytes by the 3-byte to 4-symbol grouping with "="
// padding. With urlSafe the "-"/"_" alphabet replaces "+"/"/".
func EncodeBase64(data []byte, urlSafe bool) string {
	alphabet := base64Std
	if urlSafe {
		alphabet = base64URL
	}

	var sb strings.Builder
	sb.Grow((len(data) + 2) / 3 * 4)

	for i := 0; i < len(data); i += 3 {
		var group uint32
		n := len(data) - i
		if n > 3 {
			n = 3
		}
		for j := 0; j < n; j++ {
			group |= uint32(data[i+j]) << (16 - 8*j)
		}

		sb.WriteByte(alphabet[group>>18&0x3f])
		sb.WriteByte(alphabet[group>>12&0x3f])
		if n > 1 {
			sb.WriteByte(alphabet[group>>6&0x3f])
		} else {
			sb.WriteByte('=')
		}
		if n > 2 {
			sb.WriteByte(alphabet[group&0x3f])
		} else {
			sb.WriteByte('=')
		}
	}
	return sb.String()
}

// base64Rev maps a symbol to its 6-bit value, accepting both alphabets.
// -1 marks a foreign symbol, -2 the padding symbol.
var base64Rev = func() [256]int8 {
	var rev [256]int8
	for i := range rev {
		rev[i] = -1
	}
	for i := 0; i < 64; i++ {
		rev[base64Std[i]] = int8(i)
		rev[base64URL[i]] = int8(i)
	}
	rev['='] = -2
	return rev
}()

// DecodeBase64 inverts EncodeBase64. Inputs whose length is not a multiple
// of four, or containing any symbol outside both alphabets, are rejected
// with an error naming the offending 4-symbol group.
func DecodeBase64(s string) ([]byte, error) {
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrBase64, len(s))
	}

	out := make([]byte, 0, len(s)/4*3)
	for i := 0; i < len(s); i += 4 {
		group := s[i : i+4]

		var bits uint32
		pad := 0
		for j := 0; j < 4; j++ {
			v := base64Rev[group[j]]
			switch {
			case v == -1:
				return nil, fmt.Errorf("%w: invalid symbol group %q", ErrBase64, group)
			case v == -2:
				// Padding is only valid in the trailing positions of the
				// final group.
				if i+4 != len(s) || j < 2 {
					return nil, fmt.Errorf("%w: misplaced padding in group %q", ErrBase64, group)
				}
				pad++
			case pad > 0:
				return nil, fmt.Errorf("%w: symbol after padding in group %q", ErrBase64, group)
			default:
				bits |= uint32(v) << (18 - 6*j)
			}
		}

		out = append(out, byte(bits>>16))
		if pad < 2 {
			out = append(out, byte(bits>>8))
		}
		if pad < 1 {
			out = append(out, byte(bits))
		}
	}
	return out, nil
}
