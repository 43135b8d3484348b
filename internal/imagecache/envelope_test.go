package imagecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	wire := encodeEnvelope("image/png", []byte("some raster bytes"))
	payload, contentType, err := decodePayload(wire)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, []byte("some raster bytes"), payload)
}

func TestEnvelopeWireVersionField(t *testing.T) {
	wire := encodeEnvelope("image/png", []byte("data"))
	env := decodeEnvelope(wire)
	assert.Equal(t, wireVersion, env.wireVersionField())
}

func TestEnvelopeRejectsCorruptedPayload(t *testing.T) {
	wire := encodeEnvelope("image/png", []byte("data"))
	corrupted := append([]byte(nil), wire...)
	// Flip the last byte of the buffer, which falls within the payload's
	// byte vector contents for this small input, to break the checksum.
	corrupted[len(corrupted)-1] ^= 0xFF
	_, _, err := decodePayload(corrupted)
	assert.Error(t, err)
}
