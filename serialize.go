package setsketch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	sketcherrors "github.com/tamirms/setsketch/errors"
)

// streamHeaderSize is the fixed prefix of the serialized stream:
//
//	Offset  Size  Field
//	0       1     p - 6 (log2 of bit count, offset by the word shift)
//	1       1     nh
//	2       1     |seeds|
//	3       2     hash family (uint16_le, the hash-functor state)
//	5       8     seedSeed
//	13      8     mask
//
// followed by 8*|seeds| seed bytes and 8*(m/64) core bytes, all
// little-endian. The whole stream is gzip-framed.
const streamHeaderSize = 21

// chunkWords bounds the scratch buffer used to stream core words.
const chunkWords = 4096

// WriteTo serializes the filter to w as a gzip-compatible stream and
// returns the number of compressed bytes written. It fails with
// ErrTooManySeeds if the schedule exceeds 255 seeds and with
// ErrFilterFreed on a freed filter.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	if f.core == nil {
		return 0, sketcherrors.ErrFilterFreed
	}
	if len(f.seeds) > 255 {
		return 0, fmt.Errorf("%w: have %d", sketcherrors.ErrTooManySeeds, len(f.seeds))
	}

	cw := &countingWriter{w: w}
	gz := gzip.NewWriter(cw)

	var hdr [streamHeaderSize]byte
	hdr[0] = f.p - minP
	hdr[1] = f.nh
	hdr[2] = uint8(len(f.seeds))
	binary.LittleEndian.PutUint16(hdr[3:5], uint16(f.family))
	binary.LittleEndian.PutUint64(hdr[5:13], f.seedSeed)
	binary.LittleEndian.PutUint64(hdr[13:21], f.mask)
	if _, err := gz.Write(hdr[:]); err != nil {
		return cw.n, err
	}
	if err := writeWords(gz, f.seeds); err != nil {
		return cw.n, err
	}
	if err := writeWords(gz, f.core); err != nil {
		return cw.n, err
	}
	if err := gz.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// ReadFilter reconstructs a filter from a stream written by WriteTo.
// The result compares equal to the source in (p, nh, seedSeed, seeds,
// core, mask). Truncated input fails with ErrTruncated, inconsistent
// fields with ErrCorrupted.
func ReadFilter(r io.Reader, opts ...Option) (*Filter, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	var hdr [streamHeaderSize]byte
	if err := readFull(gz, hdr[:]); err != nil {
		return nil, err
	}
	p := uint(hdr[0]) + minP
	nh := hdr[1]
	nseeds := int(hdr[2])
	family := HashFamilyID(binary.LittleEndian.Uint16(hdr[3:5]))
	seedSeed := binary.LittleEndian.Uint64(hdr[5:13])
	mask := binary.LittleEndian.Uint64(hdr[13:21])

	if p > maxP {
		return nil, fmt.Errorf("%w: p = %d", sketcherrors.ErrTooLarge, p)
	}
	if !family.valid() {
		return nil, fmt.Errorf("%w: id %d", sketcherrors.ErrUnknownHashFamily, family)
	}
	if nh == 0 {
		return nil, fmt.Errorf("%w: zero hash count", sketcherrors.ErrCorrupted)
	}
	m := mask + 1
	if m != uint64(1)<<p {
		return nil, fmt.Errorf("%w: mask 0x%x does not match p = %d", sketcherrors.ErrCorrupted, mask, p)
	}
	npw := 64 / p
	if uint(nseeds)*npw < uint(nh) {
		return nil, fmt.Errorf("%w: %d seeds cannot cover %d hashes", sketcherrors.ErrCorrupted, nseeds, nh)
	}

	cfg := defaultFilterConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	f := &Filter{
		p:          uint8(p),
		probeShift: uint8(p),
		nh:         nh,
		family:     family,
		atomicAdds: cfg.atomicAdds,
		seedSeed:   seedSeed,
		mask:       mask,
		seeds:      make([]uint64, nseeds),
		core:       make([]uint64, m>>wordShift),
	}
	if err := readWords(gz, f.seeds); err != nil {
		return nil, err
	}
	if err := readWords(gz, f.core); err != nil {
		return nil, err
	}
	// Drain to the end of the stream so the gzip reader checks its
	// trailer; a cut-off trailer surfaces here.
	if _, err := io.Copy(io.Discard, gz); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, sketcherrors.ErrTruncated
		}
		return nil, err
	}
	return f, nil
}

// WriteFile serializes the filter to a file created at path.
func (f *Filter) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create filter file: %w", err)
	}
	if _, err := f.WriteTo(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadFile reconstructs a filter from a file written by WriteFile.
func ReadFile(path string, opts ...Option) (*Filter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open filter file: %w", err)
	}
	defer file.Close()
	return ReadFilter(file, opts...)
}

func writeWords(w io.Writer, words []uint64) error {
	var buf [chunkWords * 8]byte
	for len(words) > 0 {
		n := min(len(words), chunkWords)
		for i, word := range words[:n] {
			binary.LittleEndian.PutUint64(buf[i*8:], word)
		}
		if _, err := w.Write(buf[:n*8]); err != nil {
			return err
		}
		words = words[n:]
	}
	return nil
}

func readWords(r io.Reader, words []uint64) error {
	var buf [chunkWords * 8]byte
	for len(words) > 0 {
		n := min(len(words), chunkWords)
		if err := readFull(r, buf[:n*8]); err != nil {
			return err
		}
		for i := range words[:n] {
			words[i] = binary.LittleEndian.Uint64(buf[i*8:])
		}
		words = words[n:]
	}
	return nil
}

// readFull reads exactly len(buf) bytes, mapping early EOF to
// ErrTruncated.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sketcherrors.ErrTruncated
		}
		return err
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
