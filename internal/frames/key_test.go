package frames

import (
	"math"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		x, y uint32
		want int
	}{
		{0, 0, 0},
		{5, 5, 0},
		{1, 2, -1},
		{2, 1, 1},
		{0, math.MaxUint32, 1}, // 0 follows a wrapped counter
		{math.MaxUint32, 0, -1},
		{math.MaxUint32 - 10, 10, -1},
		{0, math.MaxUint32/2 + 2, 1},
	}
	for _, tt := range tests {
		if got := compare(tt.x, tt.y); got != tt.want {
			t.Errorf("compare(%d, %d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func key(uplink, fhSeq, pdhSeq uint32, blk uint16) Key {
	return Key{UplinkID: uplink, FhSeqNum: fhSeq, PdhSeqNum: pdhSeq, PdhBlkNum: blk}
}

func TestKeyLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
	}{
		{
			name: "earlier product sequence",
			a:    key(0, 10, 5, 0),
			b:    key(0, 11, 6, 0),
		},
		{
			name: "same product earlier block",
			a:    key(0, 10, 5, 1),
			b:    key(0, 11, 5, 2),
		},
		{
			name: "product sequence wraps",
			a:    key(0, 10, math.MaxUint32, 0),
			b:    key(0, 11, 0, 0),
		},
		{
			name: "uplink switch dominates sequencing",
			a:    key(3, 10, 900, 4),
			b:    key(4, 2, 1, 0),
		},
		{
			name: "server switch resets product sequence",
			// Frame-level sequence jumped ahead while the product
			// sequence restarted: the restarted frame is earlier.
			a:    key(0, 500, 3, 0),
			b:    key(0, 40, 880, 2),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.a.Less(tt.b) {
				t.Errorf("%s.Less(%s) = false, want true", tt.a, tt.b)
			}
			if tt.b.Less(tt.a) {
				t.Errorf("%s.Less(%s) = true, want false", tt.b, tt.a)
			}
		})
	}
}

// Any two keys generated under the normal single-uplink rule must be
// strictly ordered unless their compared fields all match.
func TestKeyOrderingTotality(t *testing.T) {
	var keys []Key
	for _, uplink := range []uint32{0, 1} {
		for _, pdhSeq := range []uint32{0, 1, math.MaxUint32} {
			for _, blk := range []uint16{0, 1, 2} {
				keys = append(keys, key(uplink, pdhSeq*3+uint32(blk), pdhSeq, blk))
			}
		}
	}
	for i, a := range keys {
		for j, b := range keys {
			ab, ba := a.Less(b), b.Less(a)
			if ab && ba {
				t.Fatalf("keys %d and %d sort before each other: %s, %s", i, j, a, b)
			}
			if i != j && !ab && !ba {
				t.Fatalf("distinct keys %d and %d compare equal: %s, %s", i, j, a, b)
			}
			if i == j && (ab || ba) {
				t.Fatalf("key %d sorts before itself: %s", i, a)
			}
		}
	}
}

func TestKeySame(t *testing.T) {
	a := key(1, 10, 5, 2)
	if !a.Same(a) {
		t.Error("Same(self) = false")
	}
	if a.Same(key(1, 10, 5, 3)) {
		t.Error("Same with different block = true")
	}
}

func TestKeyIsSuccessorOf(t *testing.T) {
	tests := []struct {
		name string
		prev Key
		next Key
		want bool
	}{
		{"next block", key(0, 10, 5, 1), key(0, 11, 5, 2), true},
		{"first block of next product", key(0, 10, 5, 9), key(0, 11, 6, 0), true},
		{"block gap", key(0, 10, 5, 1), key(0, 12, 5, 3), false},
		{"product gap", key(0, 10, 5, 9), key(0, 11, 7, 0), false},
		{"next product nonzero block", key(0, 10, 5, 9), key(0, 11, 6, 1), false},
		{"different uplink", key(0, 10, 5, 1), key(1, 11, 5, 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.next.IsSuccessorOf(tt.prev); got != tt.want {
				t.Errorf("IsSuccessorOf = %v, want %v", got, tt.want)
			}
		})
	}
}
