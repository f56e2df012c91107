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

// Package similarity is a near-duplicate retrieval index built on MinHash
// and banded Locality-Sensitive Hashing. Records are grouped by scope and
// labeled feature; each feature derives a MinHash signature from the
// token streams its tokenizer produces, bands the signature into LSH
// buckets, and stores forward (bucket -> keys) and reverse (key ->
// bucket histogram) indexes in a sharded key-value store. Queries rank
// candidates by a distance metric over those histograms.
package similarity
