// Package setsketch implements probabilistic sketching structures for
// approximate set membership, cardinality, and similarity estimation.
//
// Two structures make up the core:
//
//   - Filter, a blocked Bloom filter over 64-bit hashed values with set
//     algebra, cardinality/Jaccard estimators, halving, and serialization.
//   - SketchIndex, an LSH index over fixed-width sketches using banded
//     hashing at multiple band widths, queried most-specific-first.
//
// # Bloom filter
//
// Building and querying a filter:
//
//	bf, err := setsketch.New(20, 4, 137) // 2^20 bits, 4 probes
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bf.AddHash(xxh3.HashString("example.com"))
//	if bf.MayContain(xxh3.HashString("example.com")) {
//	    fmt.Println("maybe present")
//	}
//	fmt.Printf("~%.0f distinct values\n", bf.CardinalityEstimate())
//
// Filters with identical parameters support UnionWith, IntersectWith,
// XorWith, and the Jaccard estimators. WriteTo/ReadFilter serialize a
// filter as a gzip-framed stream; Freeze/OpenFrozen snapshot one into a
// file queried through a read-only memory map.
//
// # Sketch-LSH index
//
// Indexing and querying similarity sketches:
//
//	ix := setsketch.NewSketchIndex[uint8](128)
//	id, err := ix.Update(sketch) // sketch is []uint8 of length 128
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, perBand, err := ix.QueryCandidates(query, 10)
//
// Candidates arrive most-specific-first: ids admitted by wide bands
// precede ids only sensitive narrow bands could match.
//
// # Package Structure
//
// The implementation is organized as follows:
//
//   - Bloom filter: filter.go (New, AddHash, MayContain), setops.go,
//     estimate.go, batch.go, sparse.go
//   - Configuration: options.go (Option, With* functions), params.go
//   - Hash families: hash.go (HashFamilyID)
//   - Serialization: serialize.go (WriteTo, ReadFilter), frozen.go
//     (Freeze, OpenFrozen)
//   - LSH index: lsh.go (SketchIndex, Update, QueryCandidates)
//   - Platform: fadvise_*.go, prealloc_*.go, prefault_*.go (OS-specific
//     hints for frozen files)
package setsketch
