// Package codec implements the fixed-size wire encoding for telemetry
// samples sent over the data-plane UDP socket (spec.md §6). No datagram
// codec library appears anywhere in the retrieval pack, so this is a
// deliberate stdlib-only component: encoding/binary fixed-width fields.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleSize is the wire size of one encoded sample: an 8-byte id, an
// 8-byte IEEE-754 time, and an 8-byte IEEE-754 value.
const SampleSize = 24

// Encode writes id, t, and value into buf (growing it if needed) and
// returns the 24-byte slice. Reusing buf across calls avoids an allocation
// per sample on the fan-out hot path.
func Encode(buf []byte, id uint64, t, value float64) []byte {
	if cap(buf) < SampleSize {
		buf = make([]byte, SampleSize)
	}
	buf = buf[:SampleSize]
	binary.BigEndian.PutUint64(buf[0:8], id)
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(t))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(value))
	return buf
}

// Decode parses a 24-byte wire sample back into its components.
func Decode(buf []byte) (id uint64, t, value float64, err error) {
	if len(buf) != SampleSize {
		return 0, 0, 0, fmt.Errorf("codec: expected %d bytes, got %d", SampleSize, len(buf))
	}
	id = binary.BigEndian.Uint64(buf[0:8])
	t = math.Float64frombits(binary.BigEndian.Uint64(buf[8:16]))
	value = math.Float64frombits(binary.BigEndian.Uint64(buf[16:24]))
	return id, t, value, nil
}
