// Copyright 2025 nuaays. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package similarity

// PermutationFamily is a deterministic, seeded set of row permutations
// shared by every record in an index. It realizes the MinHash hash
// functions: permutation i's hash of a column set C is the smallest
// index j such that permutation[i][j] is a member of C.
//
// A family is immutable after construction and safe for concurrent use
// by any number of MinHashFeature readers.
type PermutationFamily struct {
	rows         uint32
	permutations int
	bands        int
	bandSize     int
	seed         uint64

	// perms[i] is a permutation of [0, rows); perms[i][j] gives the row
	// index that lands at position j.
	perms [][]uint32
}

// NewPermutationFamily builds the permutation family for (rows,
// permutations, bands, seed). permutations must be a positive multiple
// of bands, and rows must be positive. The permutations are generated by
// a hand-rolled, fully-specified Fisher-Yates shuffle driven by a
// splitmix64 generator rather than math/rand, so that two processes
// built with the same seed produce bit-identical families regardless of
// Go version or platform (math/rand's shuffle algorithm is not part of
// its compatibility guarantee; splitmix64 here is fixed forever).
func NewPermutationFamily(rows uint32, permutations, bands int, seed uint64) (*PermutationFamily, error) {
	if rows == 0 {
		return nil, ErrInvalidRows
	}
	if permutations <= 0 {
		return nil, ErrInvalidPermutations
	}
	if bands <= 0 {
		return nil, ErrInvalidBandCount
	}
	if permutations%bands != 0 {
		return nil, ErrInvalidBands
	}

	state := seed
	perms := make([][]uint32, permutations)
	for i := range perms {
		p := make([]uint32, rows)
		for j := range p {
			p[j] = uint32(j)
		}
		for j := len(p) - 1; j > 0; j-- {
			state = splitmix64(state)
			k := int(state % uint64(j+1))
			p[j], p[k] = p[k], p[j]
		}
		perms[i] = p
	}

	return &PermutationFamily{
		rows:         rows,
		permutations: permutations,
		bands:        bands,
		bandSize:     permutations / bands,
		seed:         seed,
		perms:        perms,
	}, nil
}

// Rows returns the configured row count R.
func (f *PermutationFamily) Rows() uint32 { return f.rows }

// Permutations returns the configured permutation count P.
func (f *PermutationFamily) Permutations() int { return f.permutations }

// Bands returns the configured band count B.
func (f *PermutationFamily) Bands() int { return f.bands }

// BandSize returns P/B, the number of signature entries per band.
func (f *PermutationFamily) BandSize() int { return f.bandSize }

// Signature computes the P-entry MinHash signature for a column set. It
// returns (nil, false) if columns is empty, per spec §4.3: an empty
// column set yields no signature and the caller should skip the stream.
func (f *PermutationFamily) Signature(columns map[uint32]struct{}) ([]uint32, bool) {
	if len(columns) == 0 {
		return nil, false
	}

	sig := make([]uint32, f.permutations)
	for i, perm := range f.perms {
		found := false
		for j, row := range perm {
			if _, ok := columns[row]; ok {
				sig[i] = uint32(j)
				found = true
				break
			}
		}
		if !found {
			// Only possible if columns held a value >= rows; treat as
			// an empty-intersection stream and skip it, per spec.
			return nil, false
		}
	}
	return sig, true
}

// Band returns the contiguous slice of signature entries for band b.
func (f *PermutationFamily) Band(sig []uint32, b int) []uint32 {
	start := b * f.bandSize
	return sig[start : start+f.bandSize]
}

// splitmix64 advances the generator state and returns the next value in
// the sequence. Constants match the canonical splitmix64 finalizer.
func splitmix64(state uint64) uint64 {
	state += 0x9e3779b97f4a7c15
	z := state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return z
}
