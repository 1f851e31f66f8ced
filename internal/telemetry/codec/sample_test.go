package codec

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf := Encode(nil, 42, 1.5, -3.25)
	if len(buf) != SampleSize {
		t.Fatalf("expected %d bytes, got %d", SampleSize, len(buf))
	}
	id, tm, value, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != 42 || tm != 1.5 || value != -3.25 {
		t.Fatalf("round trip mismatch: id=%d t=%v value=%v", id, tm, value)
	}
}

func TestEncodeReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, SampleSize)
	buf = Encode(buf, 1, 0, 0)
	first := &buf[0]
	buf = Encode(buf, 2, 1, 1)
	second := &buf[0]
	if first != second {
		t.Fatal("expected Encode to reuse the backing array when capacity allows")
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	if _, _, _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a short buffer")
	}
}
