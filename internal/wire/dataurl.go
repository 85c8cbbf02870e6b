package wire

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DataURL is the decomposed form of a data: URL.
type DataURL struct {
	// Data is the decoded payload.
	Data []byte
	// Type is the content type, e.g. "text/plain".
	Type string
	// Charset is the charset parameter when present.
	Charset string
}

// ErrDataURL reports a malformed data URL. It is a structural error.
var ErrDataURL = errors.New("wire: malformed data url")

// dataURLToken matches the next token of the header section: one of the
// literal separators, a quoted string, or a bare token.
var dataURLToken = regexp.MustCompile(`^(?:([,;=])|"((?:[^"\\]|\\.)*)"|([^,;="]+))`)

// DecodeDataURL tokenizes content-type[;params],payload in a single pass,
// tracking whether a parameter name or a parameter value is expected. The
// payload is Base64-decoded when the base64 parameter is present, otherwise
// percent-decoded.
func DecodeDataURL(raw string) (*DataURL, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data: prefix", ErrDataURL)
	}

	var (
		contentType string
		typeSet     bool
		params      = map[string]string{}
		pendingName string
		wantName    bool
		wantValue   bool
		payload     string
		foundComma  bool
	)

	flush := func() {
		if pendingName != "" {
			if _, exists := params[pendingName]; !exists {
				params[pendingName] = ""
			}
			pendingName = ""
		}
	}

	for !foundComma && rest != "" {
		m := dataURLToken.FindStringSubmatch(rest)
		if m == nil {
			return nil, fmt.Errorf("%w: unexpected input at %q", ErrDataURL, rest)
		}
		rest = rest[len(m[0]):]

		if m[1] != "" {
			switch m[1] {
			case ",":
				flush()
				payload = rest
				foundComma = true
			case ";":
				flush()
				wantName, wantValue = true, false
			case "=":
				if pendingName == "" {
					return nil, fmt.Errorf("%w: parameter value before a name", ErrDataURL)
				}
				wantName, wantValue = false, true
			}
			continue
		}

		// Quoted strings and bare tokens carry the same meaning; quoting
		// only shields separator characters.
		text := m[3]
		if m[2] != "" || strings.HasPrefix(m[0], `"`) {
			text = unescapeQuoted(m[2])
		}

		switch {
		case wantValue:
			params[pendingName] = text
			pendingName = ""
			wantValue = false
		case wantName:
			pendingName = text
			wantName = false
		default:
			if typeSet {
				return nil, fmt.Errorf("%w: duplicate content type %q", ErrDataURL, text)
			}
			contentType = text
			typeSet = true
		}
	}

	if !foundComma {
		return nil, fmt.Errorf("%w: no comma separating header and payload", ErrDataURL)
	}

	out := &DataURL{
		Type:    contentType,
		Charset: params["charset"],
	}

	if _, isBase64 := params["base64"]; isBase64 {
		data, err := DecodeBase64(payload)
		if err != nil {
			return nil, err
		}
		out.Data = data
		return out, nil
	}

	if decoded, err := url.PathUnescape(payload); err == nil {
		out.Data = []byte(decoded)
	} else {
		out.Data = []byte(payload)
	}
	return out, nil
}

func unescapeQuoted(s string) string {
	var sb strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		if escaped {
			sb.WriteByte(s[i])
			escaped = false
			continue
		}
		if s[i] == '\\' {
			escaped = true
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
