package bits

import (
	"encoding/binary"
	"hash/fnv"
	mathbits "math/bits"
	"math/rand/v2"
	"slices"
	"testing"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

func randWords(rng *rand.Rand, n int) []uint64 {
	ws := make([]uint64, n)
	for i := range ws {
		ws[i] = rng.Uint64()
	}
	return ws
}

func TestWyrandDeterministic(t *testing.T) {
	s1, s2 := uint64(42), uint64(42)
	for i := 0; i < 100; i++ {
		if WyrandNext(&s1) != WyrandNext(&s2) {
			t.Fatalf("streams from equal states diverged at step %d", i)
		}
	}
	s3 := uint64(43)
	if v1, v3 := WyrandNext(&s1), WyrandNext(&s3); v1 == v3 {
		t.Error("streams from different states coincided immediately")
	}
}

func TestWymixMatchesMul64(t *testing.T) {
	rng := newTestRNG(t)
	for i := 0; i < 1000; i++ {
		a, b := rng.Uint64(), rng.Uint64()
		hi, lo := mathbits.Mul64(a, b)
		if Wymix(a, b) != hi^lo {
			t.Fatalf("Wymix(%x, %x) != hi^lo", a, b)
		}
	}
}

func TestNextPow2(t *testing.T) {
	cases := []struct{ in, want uint64 }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8},
		{63, 64}, {64, 64}, {65, 128}, {1 << 40, 1 << 40}, {(1 << 40) + 1, 1 << 41},
	}
	for _, tc := range cases {
		if got := NextPow2(tc.in); got != tc.want {
			t.Errorf("NextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestLog2(t *testing.T) {
	for p := uint8(0); p < 64; p++ {
		if got := Log2(uint64(1) << p); got != p {
			t.Errorf("Log2(1<<%d) = %d", p, got)
		}
	}
	if got := Log2(100); got != 6 {
		t.Errorf("Log2(100) = %d, want 6", got)
	}
}

func TestPopCounts(t *testing.T) {
	rng := newTestRNG(t)
	a := randWords(rng, 33)
	b := randWords(rng, 33)

	var wantA, wantB, wantU, wantI uint64
	for i := range a {
		wantA += uint64(mathbits.OnesCount64(a[i]))
		wantB += uint64(mathbits.OnesCount64(b[i]))
		wantU += uint64(mathbits.OnesCount64(a[i] | b[i]))
		wantI += uint64(mathbits.OnesCount64(a[i] & b[i]))
	}
	if got := PopCount(a); got != wantA {
		t.Errorf("PopCount = %d, want %d", got, wantA)
	}
	if got := PopCountAnd(a, b); got != wantI {
		t.Errorf("PopCountAnd = %d, want %d", got, wantI)
	}
	pa, pb, pu := PopCounts(a, b)
	if pa != wantA || pb != wantB || pu != wantU {
		t.Errorf("PopCounts = (%d, %d, %d), want (%d, %d, %d)", pa, pb, pu, wantA, wantB, wantU)
	}
}

func TestWordOps(t *testing.T) {
	rng := newTestRNG(t)
	src := randWords(rng, 16)

	ops := []struct {
		name  string
		apply func(dst, src []uint64)
		word  func(x, y uint64) uint64
	}{
		{"or", Or, func(x, y uint64) uint64 { return x | y }},
		{"and", And, func(x, y uint64) uint64 { return x & y }},
		{"xor", Xor, func(x, y uint64) uint64 { return x ^ y }},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			dst := randWords(rng, 16)
			want := make([]uint64, 16)
			for i := range want {
				want[i] = op.word(dst[i], src[i])
			}
			op.apply(dst, src)
			if !slices.Equal(dst, want) {
				t.Errorf("dst = %x, want %x", dst, want)
			}
		})
	}
}

func TestFoldHalve(t *testing.T) {
	ws := []uint64{0b0001, 0b0010, 0b0100, 0b1000}
	got := FoldHalve(ws)
	if !slices.Equal(got, []uint64{0b0101, 0b1010}) {
		t.Errorf("FoldHalve = %b", got)
	}
}

func TestForEachSetAscendingOnePerCall(t *testing.T) {
	rng := newTestRNG(t)
	ws := randWords(rng, 8)

	var got []uint64
	ForEachSet(ws, func(i uint64) { got = append(got, i) })

	if uint64(len(got)) != PopCount(ws) {
		t.Fatalf("visited %d bits, popcount is %d", len(got), PopCount(ws))
	}
	if !slices.IsSorted(got) {
		t.Error("bit indices not ascending")
	}
	for _, i := range got {
		if ws[i>>6]&(1<<(i&63)) == 0 {
			t.Errorf("visited bit %d is not set", i)
		}
	}
}

func TestForEachSetEmpty(t *testing.T) {
	calls := 0
	ForEachSet([]uint64{0, 0, 0}, func(uint64) { calls++ })
	if calls != 0 {
		t.Errorf("visited %d bits of an empty array", calls)
	}
}
