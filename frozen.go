package setsketch

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	mathbits "math/bits"
	"os"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"

	sketcherrors "github.com/tamirms/setsketch/errors"
)

const (
	// frozenMagic is "SSKF" in little-endian.
	frozenMagic = uint32(0x464B5353)

	// frozenVersion is the current frozen-file format version.
	frozenVersion = uint16(0x0001)

	// frozenHeaderSize is the exact size of the file header (64 bytes).
	frozenHeaderSize = 64

	// frozenFooterSize is the exact size of the file footer (32 bytes).
	frozenFooterSize = 32
)

// frozenHeader is the 64-byte frozen-file header.
//
// Layout:
//
//	Offset  Size  Field       Type
//	0       4     Magic       0x464B5353 ("SSKF")
//	4       2     Version     0x0001
//	6       1     P           uint8 (log2 of current bit count)
//	7       1     ProbeShift  uint8 (sub-index width; differs from P after Halve)
//	8       1     NumHashes   uint8
//	9       1     Reserved    zero
//	10      2     HashFamily  uint16_le
//	12      4     NumSeeds    uint32_le
//	16      8     SeedSeed    uint64_le
//	24      8     Mask        uint64_le
//	32      32    Reserved    zero
type frozenHeader struct {
	P          uint8
	ProbeShift uint8
	NumHashes  uint8
	HashFamily HashFamilyID
	NumSeeds   uint32
	SeedSeed   uint64
	Mask       uint64
}

func (h *frozenHeader) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], frozenMagic)
	binary.LittleEndian.PutUint16(buf[4:6], frozenVersion)
	buf[6] = h.P
	buf[7] = h.ProbeShift
	buf[8] = h.NumHashes
	buf[9] = 0
	binary.LittleEndian.PutUint16(buf[10:12], uint16(h.HashFamily))
	binary.LittleEndian.PutUint32(buf[12:16], h.NumSeeds)
	binary.LittleEndian.PutUint64(buf[16:24], h.SeedSeed)
	binary.LittleEndian.PutUint64(buf[24:32], h.Mask)
	clear(buf[32:frozenHeaderSize])
}

func decodeFrozenHeader(buf []byte) (*frozenHeader, error) {
	if len(buf) < frozenHeaderSize {
		return nil, sketcherrors.ErrTruncated
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != frozenMagic {
		return nil, sketcherrors.ErrInvalidMagic
	}
	if binary.LittleEndian.Uint16(buf[4:6]) != frozenVersion {
		return nil, sketcherrors.ErrInvalidVersion
	}
	h := &frozenHeader{
		P:          buf[6],
		ProbeShift: buf[7],
		NumHashes:  buf[8],
		HashFamily: HashFamilyID(binary.LittleEndian.Uint16(buf[10:12])),
		NumSeeds:   binary.LittleEndian.Uint32(buf[12:16]),
		SeedSeed:   binary.LittleEndian.Uint64(buf[16:24]),
		Mask:       binary.LittleEndian.Uint64(buf[24:32]),
	}
	if h.P < minP || h.P > maxP || h.ProbeShift < h.P || h.ProbeShift > maxP {
		return nil, fmt.Errorf("%w: bad geometry p=%d shift=%d", sketcherrors.ErrCorrupted, h.P, h.ProbeShift)
	}
	if !h.HashFamily.valid() {
		return nil, fmt.Errorf("%w: id %d", sketcherrors.ErrUnknownHashFamily, h.HashFamily)
	}
	if h.NumHashes == 0 {
		return nil, fmt.Errorf("%w: zero hash count", sketcherrors.ErrCorrupted)
	}
	if h.Mask+1 != uint64(1)<<h.P {
		return nil, fmt.Errorf("%w: mask 0x%x does not match p = %d", sketcherrors.ErrCorrupted, h.Mask, h.P)
	}
	return h, nil
}

// frozenFooter is the 32-byte frozen-file footer.
//
// Layout:
//
//	Offset  Size  Field           Type
//	0       8     SeedRegionHash  uint64_le (xxHash64 of seed region)
//	8       8     CoreRegionHash  uint64_le (xxHash64 of core region)
//	16      16    Reserved        zero
type frozenFooter struct {
	SeedRegionHash uint64
	CoreRegionHash uint64
}

// frozenFileSize is the exact on-disk size of a snapshot: fixed header,
// seed and core regions, checksum footer.
func frozenFileSize(nseeds, nwords int) int64 {
	return frozenHeaderSize + int64(nseeds+nwords)*8 + frozenFooterSize
}

// Freeze writes the filter to path as an uncompressed fixed-layout
// snapshot that OpenFrozen can query through a read-only memory map
// without loading the core into heap memory. The destination is
// preallocated to its exact final size where the platform supports it.
func (f *Filter) Freeze(path string) error {
	if f.core == nil {
		return sketcherrors.ErrFilterFreed
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frozen file: %w", err)
	}
	if err := preallocateFrozen(file, frozenFileSize(len(f.seeds), len(f.core))); err != nil {
		file.Close()
		return fmt.Errorf("preallocate frozen file: %w", err)
	}

	w := bufio.NewWriter(file)

	var hdr [frozenHeaderSize]byte
	(&frozenHeader{
		P:          f.p,
		ProbeShift: f.probeShift,
		NumHashes:  f.nh,
		HashFamily: f.family,
		NumSeeds:   uint32(len(f.seeds)),
		SeedSeed:   f.seedSeed,
		Mask:       f.mask,
	}).encodeTo(hdr[:])
	if _, err := w.Write(hdr[:]); err != nil {
		file.Close()
		return err
	}

	// Hash each region as it streams out so no second pass is needed.
	seedHasher := xxhash.New()
	if err := writeWords(io.MultiWriter(w, seedHasher), f.seeds); err != nil {
		file.Close()
		return err
	}
	coreHasher := xxhash.New()
	if err := writeWords(io.MultiWriter(w, coreHasher), f.core); err != nil {
		file.Close()
		return err
	}

	var ftr [frozenFooterSize]byte
	binary.LittleEndian.PutUint64(ftr[0:8], seedHasher.Sum64())
	binary.LittleEndian.PutUint64(ftr[8:16], coreHasher.Sum64())
	if _, err := w.Write(ftr[:]); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// FrozenFilter is a read-only filter backed by a frozen snapshot file.
//
// Thread safety:
//   - MayContain, PopCount, and the estimators are safe for concurrent use
//   - Close is NOT safe to call concurrently with queries
//   - After Close returns, no methods may be called on the FrozenFilter
type FrozenFilter struct {
	// Memory map (no file handle needed after mmap)
	mmap mmap.MMap
	data []byte

	header *frozenHeader

	// seeds are decoded eagerly; the core stays in the mapping.
	seeds   []uint64
	coreOff uint64
	words   int

	closed atomic.Bool
}

// OpenFrozen opens a frozen filter file for querying. It opens the file,
// memory-maps it, and closes the file descriptor.
func OpenFrozen(path string) (*FrozenFilter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frozen file: %w", err)
	}
	defer file.Close()
	return OpenFrozenFile(file)
}

// OpenFrozenFile opens a frozen filter by memory-mapping the given file.
// The caller is responsible for closing f; per POSIX mmap(2), f may be
// closed immediately after OpenFrozenFile returns.
func OpenFrozenFile(f *os.File) (*FrozenFilter, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat frozen file: %w", err)
	}
	if stat.Size() < frozenHeaderSize+frozenFooterSize {
		return nil, sketcherrors.ErrTruncated
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap frozen file: %w", err)
	}

	// Probes touch scattered words; tell the kernel not to read ahead,
	// and ask for the whole map up front where that is supported.
	fadviseRandom(int(f.Fd()), stat.Size())
	prefaultRead(mm)

	fz := &FrozenFilter{
		mmap: mm,
		data: []byte(mm),
	}
	if err := fz.initFromData(); err != nil {
		return nil, errors.Join(err, fz.Close())
	}
	return fz, nil
}

// OpenFrozenBytes creates a frozen filter from an in-memory byte slice.
// No file is opened or memory-mapped; Close is a no-op. The caller must
// not modify data while the FrozenFilter is in use.
func OpenFrozenBytes(data []byte) (*FrozenFilter, error) {
	if len(data) < frozenHeaderSize+frozenFooterSize {
		return nil, sketcherrors.ErrTruncated
	}
	fz := &FrozenFilter{data: data}
	if err := fz.initFromData(); err != nil {
		return nil, err
	}
	return fz, nil
}

// initFromData parses the header and seed region from fz.data. Footer
// decoding is deferred to Verify.
func (fz *FrozenFilter) initFromData() error {
	hdr, err := decodeFrozenHeader(fz.data[:frozenHeaderSize])
	if err != nil {
		return err
	}
	fz.header = hdr

	seedsOff := uint64(frozenHeaderSize)
	fz.coreOff = seedsOff + uint64(hdr.NumSeeds)*8
	fz.words = int((hdr.Mask + 1) >> wordShift)

	expect := fz.coreOff + uint64(fz.words)*8 + frozenFooterSize
	if uint64(len(fz.data)) != expect {
		return fmt.Errorf("%w: file is %d bytes, layout needs %d", sketcherrors.ErrCorrupted, len(fz.data), expect)
	}

	fz.seeds = make([]uint64, hdr.NumSeeds)
	for i := range fz.seeds {
		fz.seeds[i] = binary.LittleEndian.Uint64(fz.data[seedsOff+uint64(i)*8:])
	}
	return nil
}

// Close closes the frozen filter and releases the mapping.
func (fz *FrozenFilter) Close() error {
	if fz.closed.Swap(true) {
		return nil // Already closed
	}
	if fz.mmap != nil {
		return fz.mmap.Unmap()
	}
	return nil
}

// Bits returns m, the number of addressable bits.
func (fz *FrozenFilter) Bits() uint64 { return fz.header.Mask + 1 }

// P returns log2 of the bit count.
func (fz *FrozenFilter) P() uint8 { return fz.header.P }

// NumHashes returns the number of probes per value.
func (fz *FrozenFilter) NumHashes() int { return int(fz.header.NumHashes) }

// SeedSeed returns the master seed of the schedule.
func (fz *FrozenFilter) SeedSeed() uint64 { return fz.header.SeedSeed }

// HashFamily returns the probe hash family.
func (fz *FrozenFilter) HashFamily() HashFamilyID { return fz.header.HashFamily }

func (fz *FrozenFilter) word(i uint64) uint64 {
	return binary.LittleEndian.Uint64(fz.data[fz.coreOff+i*8:])
}

func (fz *FrozenFilter) isSet(ind uint64) bool {
	ind &= fz.header.Mask
	return fz.word(ind>>wordShift)&(1<<(ind&63)) != 0
}

// MayContain reports whether v may have been inserted into the filter
// this snapshot was frozen from.
func (fz *FrozenFilter) MayContain(v uint64) bool {
	if fz.closed.Load() {
		return false
	}
	shift := uint(fz.header.ProbeShift)
	npw := 64 / shift
	nleft := uint(fz.header.NumHashes)
	for _, s := range fz.seeds {
		h := fz.header.HashFamily.mix64(v ^ s)
		todo := min(npw, nleft)
		for j := uint(0); j < todo; j++ {
			if !fz.isSet(h >> (j * shift)) {
				return false
			}
		}
		nleft -= todo
		if nleft == 0 {
			break
		}
	}
	return true
}

// PopCount returns the number of set bits in the frozen core.
func (fz *FrozenFilter) PopCount() uint64 {
	var sum uint64
	for i := uint64(0); i < uint64(fz.words); i++ {
		sum += uint64(mathbits.OnesCount64(fz.word(i)))
	}
	return sum
}

// CardinalityEstimate estimates the number of distinct values inserted
// before the snapshot was frozen. Saturates to +Inf when all bits are set.
func (fz *FrozenFilter) CardinalityEstimate() float64 {
	return cardinalityFromPop(fz.PopCount(), fz.Bits(), fz.NumHashes())
}

// FalsePositiveEstimate estimates the snapshot's false-positive rate.
func (fz *FrozenFilter) FalsePositiveEstimate() float64 {
	k := float64(fz.PopCount()) / float64(fz.Bits())
	return math.Pow(k, float64(fz.header.NumHashes))
}

// Verify checks the footer's region checksums against the seed and core
// regions. The footer is only touched here, not at open time.
func (fz *FrozenFilter) Verify() error {
	if fz.closed.Load() {
		return sketcherrors.ErrFrozenClosed
	}
	footOff := uint64(len(fz.data)) - frozenFooterSize
	ftr := frozenFooter{
		SeedRegionHash: binary.LittleEndian.Uint64(fz.data[footOff:]),
		CoreRegionHash: binary.LittleEndian.Uint64(fz.data[footOff+8:]),
	}
	if xxhash.Sum64(fz.data[frozenHeaderSize:fz.coreOff]) != ftr.SeedRegionHash {
		return sketcherrors.ErrChecksumFailed
	}
	if xxhash.Sum64(fz.data[fz.coreOff:footOff]) != ftr.CoreRegionHash {
		return sketcherrors.ErrChecksumFailed
	}
	return nil
}

// Thaw copies the snapshot into a mutable Filter.
func (fz *FrozenFilter) Thaw(opts ...Option) (*Filter, error) {
	if fz.closed.Load() {
		return nil, sketcherrors.ErrFrozenClosed
	}
	cfg := defaultFilterConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	f := &Filter{
		p:          fz.header.P,
		probeShift: fz.header.ProbeShift,
		nh:         fz.header.NumHashes,
		family:     fz.header.HashFamily,
		atomicAdds: cfg.atomicAdds,
		seedSeed:   fz.header.SeedSeed,
		mask:       fz.header.Mask,
		seeds:      append([]uint64(nil), fz.seeds...),
		core:       make([]uint64, fz.words),
	}
	for i := range f.core {
		f.core[i] = fz.word(uint64(i))
	}
	return f, nil
}
