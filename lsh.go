package setsketch

import (
	"fmt"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"

	sketcherrors "github.com/tamirms/setsketch/errors"
	intbits "github.com/tamirms/setsketch/internal/bits"
)

// Register constrains the element type of a sketch's register array.
type Register interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// SketchIndex is an LSH index over fixed-width sketches of R-typed
// registers.
//
// The index is layered into bands of increasing width. Each band of
// width b hosts a number of rows (floor(m/b) by default); a row maps a
// 64-bit digest of b registers to the ids inserted under that digest.
// Narrow bands are sensitive (single-register collisions suffice), wide
// bands are specific (whole slices must agree), and queries walk bands
// widest-first so the most specific matches surface first.
//
// Mutation (Update) is not safe concurrently with anything else on the
// same index; queries are safe concurrently with other queries.
type SketchIndex[R Register] struct {
	m      int
	widths []int
	// tables[band][row] maps digest -> ids, in insertion order.
	tables   [][]map[uint64][]uint32
	totalIDs uint32
}

// NewSketchIndex creates an index over sketches of m registers with the
// powers-of-two band schedule: widths 1, 2, 4, ... up to the greatest
// power of two <= m. m below 1 is raised to 1.
func NewSketchIndex[R Register](m int) *SketchIndex[R] {
	if m < 1 {
		m = 1
	}
	ix := &SketchIndex[R]{m: m}
	for w := 1; w <= m; w <<= 1 {
		ix.addBand(w, 0)
	}
	return ix
}

// NewDenseSketchIndex creates an index with the densified schedule:
// every integer width 1 .. m. More bands buy finer-grained similarity
// resolution at proportionally higher insert cost.
func NewDenseSketchIndex[R Register](m int) *SketchIndex[R] {
	if m < 1 {
		m = 1
	}
	ix := &SketchIndex[R]{m: m}
	for w := 1; w <= m; w++ {
		ix.addBand(w, 0)
	}
	return ix
}

// NewSketchIndexWith creates an index with an explicit band schedule.
// rows may be nil, in which case every band gets floor(m/width) rows;
// otherwise it must have the same length as widths
// (ErrMismatchedSchedule) and a non-positive entry falls back to the
// default. Any width above m fails with ErrInvalidBandWidth.
func NewSketchIndexWith[R Register](m int, widths []int, rows []int) (*SketchIndex[R], error) {
	if m < 1 {
		m = 1
	}
	if rows != nil && len(rows) != len(widths) {
		return nil, fmt.Errorf("%w: %d widths, %d row counts",
			sketcherrors.ErrMismatchedSchedule, len(widths), len(rows))
	}
	ix := &SketchIndex[R]{m: m}
	for i, w := range widths {
		if w < 1 || w > m {
			return nil, fmt.Errorf("%w: width %d with m = %d", sketcherrors.ErrInvalidBandWidth, w, m)
		}
		nrows := 0
		if rows != nil {
			nrows = rows[i]
		}
		ix.addBand(w, nrows)
	}
	return ix, nil
}

// addBand appends a band of the given width. nrows <= 0 selects the
// default floor(m/width).
func (ix *SketchIndex[R]) addBand(width, nrows int) {
	if nrows <= 0 {
		nrows = ix.m / width
	}
	band := make([]map[uint64][]uint32, nrows)
	for j := range band {
		band[j] = make(map[uint64][]uint32)
	}
	ix.widths = append(ix.widths, width)
	ix.tables = append(ix.tables, band)
}

// M returns the register count every sketch must have.
func (ix *SketchIndex[R]) M() int { return ix.m }

// Size returns the number of sketches inserted.
func (ix *SketchIndex[R]) Size() int { return int(ix.totalIDs) }

// NumBands returns the number of banded layers.
func (ix *SketchIndex[R]) NumBands() int { return len(ix.widths) }

// BandWidths returns a copy of the band schedule, narrowest first.
func (ix *SketchIndex[R]) BandWidths() []int {
	return append([]int(nil), ix.widths...)
}

// Update inserts a sketch and returns its assigned id. Ids are dense in
// insertion order, starting at 0. A sketch with a register count other
// than M fails with ErrSizeMismatch.
func (ix *SketchIndex[R]) Update(sketch []R) (uint32, error) {
	if len(sketch) != ix.m {
		return 0, fmt.Errorf("%w: got %d, want %d", sketcherrors.ErrSizeMismatch, len(sketch), ix.m)
	}
	id := ix.totalIDs
	ix.totalIDs++
	scratch := ix.newScratch()
	for i, band := range ix.tables {
		for j := range band {
			d := ix.hashIndex(sketch, i, j, scratch)
			band[j][d] = append(band[j][d], id)
		}
	}
	return id, nil
}

// QueryCandidates walks all bands from most specific to most sensitive.
// See QueryCandidatesFrom.
func (ix *SketchIndex[R]) QueryCandidates(sketch []R, maxCand int) ([]uint32, []uint32, error) {
	return ix.QueryCandidatesFrom(sketch, maxCand, ix.NumBands())
}

// QueryCandidatesFrom returns candidate ids matching the query sketch,
// walking bands in descending width order from band start-1 down to 0.
// A start outside [1, NumBands] means all bands.
//
// Ids are returned in admission order, so the prefix holds matches from
// the most specific bands. The second result counts the ids newly
// admitted by each visited band, in traversal order. Once at least
// maxCand distinct ids have been admitted, traversal stops after
// finishing the current band.
func (ix *SketchIndex[R]) QueryCandidatesFrom(sketch []R, maxCand, start int) ([]uint32, []uint32, error) {
	if len(sketch) != ix.m {
		return nil, nil, fmt.Errorf("%w: got %d, want %d", sketcherrors.ErrSizeMismatch, len(sketch), ix.m)
	}
	if start < 1 || start > len(ix.tables) {
		start = len(ix.tables)
	}

	// Multiplicity per id; an id enters the output on first sighting.
	counts := make(map[uint32]uint32, maxCand)
	ids := make([]uint32, 0, maxCand)
	perBand := make([]uint32, 0, start)
	scratch := ix.newScratch()

	for i := start - 1; i >= 0; i-- {
		before := len(ids)
		for j := range ix.tables[i] {
			d := ix.hashIndex(sketch, i, j, scratch)
			for _, id := range ix.tables[i][j][d] {
				if _, seen := counts[id]; !seen {
					counts[id] = 1
					ids = append(ids, id)
				} else {
					counts[id]++
				}
			}
		}
		perBand = append(perBand, uint32(len(ids)-before))
		if len(counts) >= maxCand {
			break
		}
	}
	return ids, perBand, nil
}

// hashIndex digests the slice of sketch that band i, row j covers. Wide
// in-range rows digest their contiguous register slice; short or
// out-of-range rows digest width pseudo-randomly chosen registers under
// a (band, row)-derived seed. Pure: equal inputs always produce equal
// digests, which is the only mechanism by which equal sketches land in
// equal slots.
func (ix *SketchIndex[R]) hashIndex(sketch []R, i, j int, scratch []byte) uint64 {
	w := ix.widths[i]
	if w >= 4 && (j+1)*w <= ix.m {
		return xxh3.Hash(appendRegsLE(scratch[:0], sketch[w*j:w*(j+1)]))
	}

	// The seed doubles as the sampling stream state, mirroring its role
	// as the digest seed.
	seed := uint64(i)<<32 | uint64(j)
	state := seed
	d := xxhash.New()
	d.ResetWithSeed(seed)
	var tmp [8]byte
	size := regSize[R]()
	for ri := 0; ri < w; ri++ {
		idx := int(uint32(intbits.WyrandNext(&state)) % uint32(ix.m))
		v := uint64(sketch[idx])
		for k := 0; k < size; k++ {
			tmp[k] = byte(v >> (8 * k))
		}
		_, _ = d.Write(tmp[:size])
	}
	return d.Sum64()
}

// newScratch sizes a digest buffer for the widest contiguous band.
func (ix *SketchIndex[R]) newScratch() []byte {
	maxW := 0
	for _, w := range ix.widths {
		if w > maxW {
			maxW = w
		}
	}
	return make([]byte, 0, maxW*regSize[R]())
}

// regSize returns the byte width of the register type.
func regSize[R Register]() int {
	var zero R
	return int(unsafe.Sizeof(zero))
}

// appendRegsLE appends each register's little-endian bytes to dst.
func appendRegsLE[R Register](dst []byte, regs []R) []byte {
	size := regSize[R]()
	for _, r := range regs {
		v := uint64(r)
		for k := 0; k < size; k++ {
			dst = append(dst, byte(v>>(8*k)))
		}
	}
	return dst
}
