package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURLPlain(t *testing.T) {
	out, err := DecodeDataURL("data:text/plain;charset=utf-8,hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out.Data))
	assert.Equal(t, "text/plain", out.Type)
	assert.Equal(t, "utf-8", out.Charset)
}

func TestDecodeDataURLBase64(t *testing.T) {
	out, err := DecodeDataURL("data:application/octet-stream;base64,AAA=")
	require.NoError(t, err)
	require.Len(t, out.Data, 2)
	assert.Equal(t, byte(0), out.Data[0])
	assert.Equal(t, byte(0), out.Data[1])
	assert.Equal(t, "application/octet-stream", out.Type)
	assert.Empty(t, out.Charset)
}

func TestDecodeDataURLPercentEncoded(t *testing.T) {
	out, err := DecodeDataURL("data:text/plain,hello%20there")
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(out.Data))
}

func TestDecodeDataURLQuotedParam(t *testing.T) {
	out, err := DecodeDataURL(`data:text/plain;charset="utf-8",x`)
	require.NoError(t, err)
	assert.Equal(t, "utf-8", out.Charset)
}

func TestDecodeDataURLEmptyType(t *testing.T) {
	out, err := DecodeDataURL("data:,bare")
	require.NoError(t, err)
	assert.Equal(t, "bare", string(out.Data))
	assert.Empty(t, out.Type)
}

func TestDecodeDataURLRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing prefix", "text/plain,hello"},
		{"value before name", "data:=utf-8,hello"},
		{"duplicate content type", `data:text/plain"again",x`},
		{"no comma", "data:text/plain;charset=utf-8"},
		{"bad base64 payload", "data:application/octet-stream;base64,A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDataURL(tt.in)
			require.Error(t, err, "input %q", tt.in)
		})
	}
}
