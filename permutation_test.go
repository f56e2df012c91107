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

import "testing"

func TestNewPermutationFamily_Validation(t *testing.T) {
	testCases := []struct {
		name         string
		rows         uint32
		permutations int
		bands        int
		wantErr      error
	}{
		{"ZeroRows", 0, 16, 8, ErrInvalidRows},
		{"ZeroPermutations", 1024, 0, 8, ErrInvalidPermutations},
		{"ZeroBands", 1024, 16, 0, ErrInvalidBandCount},
		{"PermutationsNotMultipleOfBands", 1024, 15, 8, ErrInvalidBands},
		{"Valid", 1024, 16, 8, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPermutationFamily(tc.rows, tc.permutations, tc.bands, 0)
			if err != tc.wantErr {
				t.Fatalf("NewPermutationFamily() err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewPermutationFamily_Determinism(t *testing.T) {
	a, err := NewPermutationFamily(1024, 16, 8, 42)
	if err != nil {
		t.Fatalf("NewPermutationFamily() error = %v", err)
	}
	b, err := NewPermutationFamily(1024, 16, 8, 42)
	if err != nil {
		t.Fatalf("NewPermutationFamily() error = %v", err)
	}

	for i := range a.perms {
		for j := range a.perms[i] {
			if a.perms[i][j] != b.perms[i][j] {
				t.Fatalf("perms[%d][%d] differ: %d vs %d", i, j, a.perms[i][j], b.perms[i][j])
			}
		}
	}
}

func TestNewPermutationFamily_DifferentSeedsDiverge(t *testing.T) {
	a, _ := NewPermutationFamily(1024, 16, 8, 1)
	b, _ := NewPermutationFamily(1024, 16, 8, 2)

	same := true
	for i := range a.perms {
		for j := range a.perms[i] {
			if a.perms[i][j] != b.perms[i][j] {
				same = false
			}
		}
	}
	if same {
		t.Fatal("permutations built from different seeds were identical")
	}
}

func TestPermutationFamily_SignatureEmptyColumns(t *testing.T) {
	f, err := NewPermutationFamily(1024, 16, 8, 0)
	if err != nil {
		t.Fatalf("NewPermutationFamily() error = %v", err)
	}

	_, ok := f.Signature(map[uint32]struct{}{})
	if ok {
		t.Fatal("Signature() with empty column set should return ok=false")
	}
}

func TestPermutationFamily_SignatureLength(t *testing.T) {
	f, err := NewPermutationFamily(1024, 16, 8, 0)
	if err != nil {
		t.Fatalf("NewPermutationFamily() error = %v", err)
	}

	sig, ok := f.Signature(map[uint32]struct{}{5: {}, 900: {}})
	if !ok {
		t.Fatal("Signature() returned ok=false for non-empty columns")
	}
	if len(sig) != 16 {
		t.Fatalf("len(sig) = %d, want 16", len(sig))
	}
	for i := range sig {
		if sig[i] >= 1024 {
			t.Fatalf("sig[%d] = %d out of range [0, 1024)", i, sig[i])
		}
	}
}

func TestPermutationFamily_Band(t *testing.T) {
	f, err := NewPermutationFamily(1024, 16, 8, 0)
	if err != nil {
		t.Fatalf("NewPermutationFamily() error = %v", err)
	}
	sig, _ := f.Signature(map[uint32]struct{}{5: {}})

	for b := 0; b < f.Bands(); b++ {
		band := f.Band(sig, b)
		if len(band) != f.BandSize() {
			t.Fatalf("Band(%d) len = %d, want %d", b, len(band), f.BandSize())
		}
	}
}
