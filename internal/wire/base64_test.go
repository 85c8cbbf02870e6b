package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase64RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0},
		{0, 0},
		{0, 0, 0},
		{0xff},
		{0xff, 0xfe},
		{0xff, 0xfe, 0xfd},
		[]byte("hello world"),
		[]byte("any carnal pleasure."),
		{0x00, 0x10, 0x83, 0x10, 0x51, 0x87, 0xfb, 0xef, 0xbe},
	}

	for _, in := range inputs {
		for _, urlSafe := range []bool{false, true} {
			enc := EncodeBase64(in, urlSafe)
			dec, err := DecodeBase64(enc)
			require.NoError(t, err, "decode %q", enc)
			require.True(t, bytes.Equal(in, dec), "round trip of %v via %q gave %v", in, enc, dec)
		}
	}
}

func TestBase64KnownVectors(t *testing.T) {
	assert.Equal(t, "", EncodeBase64(nil, false))
	assert.Equal(t, "Zg==", EncodeBase64([]byte("f"), false))
	assert.Equal(t, "Zm8=", EncodeBase64([]byte("fo"), false))
	assert.Equal(t, "Zm9v", EncodeBase64([]byte("foo"), false))
	assert.Equal(t, "Zm9vYg==", EncodeBase64([]byte("foob"), false))
}

func TestBase64URLSafeAlphabet(t *testing.T) {
	in := []byte{0xfb, 0xef, 0xbe}

	std := EncodeBase64(in, false)
	safe := EncodeBase64(in, true)
	assert.Contains(t, std, "+")
	assert.NotContains(t, safe, "+")
	assert.NotContains(t, safe, "/")

	// Both alphabets decode.
	fromStd, err := DecodeBase64(std)
	require.NoError(t, err)
	fromSafe, err := DecodeBase64(safe)
	require.NoError(t, err)
	assert.Equal(t, fromStd, fromSafe)
}

func TestBase64Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"length not multiple of four", "Zm9vY"},
		{"foreign symbol", "Zm9*"},
		{"padding in the middle", "Zg==Zm9v"},
		{"symbol after padding", "Z==v"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBase64(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBase64)
		})
	}
}

func TestBase64ErrorNamesGroup(t *testing.T) {
	_, err := DecodeBase64("Zm9vAB*D")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"AB*D"`)
}
