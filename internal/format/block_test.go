package format

import "testing"

func TestPackUnpack(t *testing.T) {
	cases := []struct {
		size      uint64
		allocated bool
	}{
		{0, true},
		{16, true},
		{32, false},
		{48, true},
		{1 << 40, false},
	}
	for _, tc := range cases {
		w := Pack(tc.size, tc.allocated)
		size, allocated := Unpack(w)
		if size != tc.size || allocated != tc.allocated {
			t.Fatalf("Unpack(Pack(%d,%v)) = (%d,%v)", tc.size, tc.allocated, size, allocated)
		}
	}
}

func TestPackKeepsLowBitsForFlag(t *testing.T) {
	w := Pack(64, true)
	if w != 65 {
		t.Fatalf("Pack(64,true)=%d want 65", w)
	}
	if UnpackSize(w) != 64 {
		t.Fatalf("UnpackSize=%d want 64", UnpackSize(w))
	}
}

func TestBlockOffsets(t *testing.T) {
	p := 32
	if HeaderOffset(p) != 24 {
		t.Fatalf("HeaderOffset=%d", HeaderOffset(p))
	}
	if FooterOffset(p, 64) != 80 {
		t.Fatalf("FooterOffset=%d", FooterOffset(p, 64))
	}
	if NextOffset(p, 64) != 96 {
		t.Fatalf("NextOffset=%d", NextOffset(p, 64))
	}
	if PrevFooterOffset(p) != 16 {
		t.Fatalf("PrevFooterOffset=%d", PrevFooterOffset(p))
	}
	if PayloadSize(64) != 48 || PayloadSize(8) != 0 {
		t.Fatalf("PayloadSize mismatch")
	}
}

func TestAlignUp(t *testing.T) {
	for in, want := range map[uint64]uint64{0: 0, 1: 16, 16: 16, 17: 32, 56: 64} {
		if got := AlignUp(in); got != want {
			t.Fatalf("AlignUp(%d)=%d want %d", in, got, want)
		}
	}
	if AlignUpInt(33) != 48 {
		t.Fatalf("AlignUpInt(33)=%d", AlignUpInt(33))
	}
	if !IsAligned(48) || IsAligned(40) {
		t.Fatalf("IsAligned mismatch")
	}
}

func TestWordRoundTrip(t *testing.T) {
	b := make([]byte, 32)
	PutWord(b, 8, 0xdeadbeefcafef00d)
	if got := ReadWord(b, 8); got != 0xdeadbeefcafef00d {
		t.Fatalf("ReadWord=%x", got)
	}
	if _, err := ReadWordChecked(b, 28); err != ErrTruncated {
		t.Fatalf("ReadWordChecked past end: err=%v", err)
	}
	if _, err := ReadWordChecked(b, -1); err != ErrTruncated {
		t.Fatalf("ReadWordChecked negative: err=%v", err)
	}
}
