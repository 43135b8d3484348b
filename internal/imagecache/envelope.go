package imagecache

import (
	"fmt"
	"hash/crc32"

	flatbuffers "github.com/google/flatbuffers/go"
)

// wireVersion tags the envelope layout so a future incompatible change
// can be rejected outright instead of silently misread.
const wireVersion int32 = 1

// Field slot indices of the hand-built envelope table (no .fbs schema is
// compiled; the table is constructed and read directly against the
// low-level flatbuffers.Builder/Table API, the way the teacher's
// grid_cache.go builds its own envelope against generated fbgrid types —
// here inlined because no schema compiler runs in this build).
const (
	slotWireVersion = 0
	slotChecksum    = 1
	slotContentType = 2
	slotPayload     = 3
)

var (
	// ErrIncompatibleWireVersion is returned when a cached envelope was
	// written by a different, incompatible version of this package.
	ErrIncompatibleWireVersion = fmt.Errorf("imagecache: incompatible envelope wire version")
	// ErrChecksumMismatch is returned when a cached payload's CRC32 does
	// not match the checksum stored alongside it.
	ErrChecksumMismatch = fmt.Errorf("imagecache: payload checksum mismatch")
)

// encodeEnvelope packs contentType and payload (and payload's CRC32)
// into a single flatbuffer-encoded byte string suitable for storing in
// an in-process cache entry or a Redis value.
func encodeEnvelope(contentType string, payload []byte) []byte {
	checksum := crc32.ChecksumIEEE(payload)

	b := flatbuffers.NewBuilder(len(payload) + 64)
	payloadOff := b.CreateByteVector(payload)
	ctOff := b.CreateString(contentType)

	b.StartObject(4)
	b.PrependUOffsetTSlot(slotPayload, payloadOff, 0)
	b.PrependUOffsetTSlot(slotContentType, ctOff, 0)
	b.PrependUint32Slot(slotChecksum, checksum, 0)
	b.PrependInt32Slot(slotWireVersion, wireVersion, 0)
	root := b.EndObject()
	b.Finish(root)

	return b.FinishedBytes()
}

// envelope is a read-only view over a decoded flatbuffer table.
type envelope struct {
	tab flatbuffers.Table
}

// decodeEnvelope wraps buf (as produced by encodeEnvelope) without
// copying it, matching the GetRootAsX pattern flatbuffers codegen
// produces.
func decodeEnvelope(buf []byte) *envelope {
	n := flatbuffers.GetUOffsetT(buf)
	return &envelope{tab: flatbuffers.Table{Bytes: buf, Pos: n}}
}

func (e *envelope) wireVersionField() int32 {
	o := flatbuffers.UOffsetT(e.tab.Offset(4 + slotWireVersion*2))
	if o == 0 {
		return 0
	}
	return e.tab.GetInt32(o + e.tab.Pos)
}

func (e *envelope) checksumField() uint32 {
	o := flatbuffers.UOffsetT(e.tab.Offset(4 + slotChecksum*2))
	if o == 0 {
		return 0
	}
	return e.tab.GetUint32(o + e.tab.Pos)
}

func (e *envelope) contentTypeField() string {
	o := flatbuffers.UOffsetT(e.tab.Offset(4 + slotContentType*2))
	if o == 0 {
		return ""
	}
	return e.tab.String(o + e.tab.Pos)
}

func (e *envelope) payloadField() []byte {
	o := flatbuffers.UOffsetT(e.tab.Offset(4 + slotPayload*2))
	if o == 0 {
		return nil
	}
	return e.tab.ByteVector(o + e.tab.Pos)
}

// decodePayload validates the wire version and checksum and returns the
// contained bytes and content type.
func decodePayload(buf []byte) ([]byte, string, error) {
	env := decodeEnvelope(buf)
	if env.wireVersionField() != wireVersion {
		return nil, "", ErrIncompatibleWireVersion
	}
	payload := env.payloadField()
	if crc32.ChecksumIEEE(payload) != env.checksumField() {
		return nil, "", ErrChecksumMismatch
	}
	return payload, env.contentTypeField(), nil
}
