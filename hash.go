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

import "github.com/cespare/xxhash/v2"

// hashToken returns a stable, non-cryptographic hash of a token. It is a
// pure function of the token's bytes, so it produces the same value
// across processes, restarts, and hosts: the index's on-disk/on-wire
// data is portable as long as the (R, P, B, seed) configuration is held
// fixed (spec's "Hash stability" note).
func hashToken(token string) uint64 {
	return xxhash.Sum64String(token)
}

// column maps a token into a row index in [0, rows) for the permutation
// family's column-set computation (spec §4.3 step 1).
func column(token string, rows uint32) uint32 {
	return uint32(hashToken(token) % uint64(rows))
}
