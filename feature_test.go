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

import (
	"context"
	"math"
	"strings"
	"testing"
)

func newTestFeature(t *testing.T, shingle int) *MinHashFeature[string] {
	t.Helper()
	client := newTestClient(t)
	t.Cleanup(func() { client.Close() })

	f, err := NewMinHashFeature(client, MinHashFeatureConfig[string]{
		Label:        "message",
		Rows:         1024,
		Permutations: 8,
		Bands:        4,
		Seed:         0,
		Tokenizer:    WhitespaceTokenizer{ShingleSize: shingle},
	})
	if err != nil {
		t.Fatalf("NewMinHashFeature() error = %v", err)
	}
	return f
}

func matchFor(matches []Match, key string) (Match, bool) {
	for _, m := range matches {
		if m.Key == key {
			return m, true
		}
	}
	return Match{}, false
}

// Scenario 1: identity.
func TestMinHashFeature_Identity(t *testing.T) {
	f := newTestFeature(t, 0)
	ctx := context.Background()

	if err := f.Record(ctx, "s", "a", "the quick brown fox"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	matches, err := f.GetSimilar(ctx, "s", "a")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1: %+v", len(matches), matches)
	}
	if matches[0].Key != "a" {
		t.Errorf("matches[0].Key = %q, want \"a\"", matches[0].Key)
	}
	if math.Abs(matches[0].Similarity-1.0) > 1e-9 {
		t.Errorf("matches[0].Similarity = %v, want 1.0", matches[0].Similarity)
	}
}

// Scenario 2: near-duplicate.
func TestMinHashFeature_NearDuplicate(t *testing.T) {
	f := newTestFeature(t, 0)
	ctx := context.Background()

	if err := f.Record(ctx, "s", "a", "the quick brown fox"); err != nil {
		t.Fatalf("Record(a) error = %v", err)
	}
	if err := f.Record(ctx, "s", "b", "the quick brown fox jumps"); err != nil {
		t.Fatalf("Record(b) error = %v", err)
	}

	matches, err := f.GetSimilar(ctx, "s", "a")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}

	a, ok := matchFor(matches, "a")
	if !ok {
		t.Fatal("matches missing self key \"a\"")
	}
	b, ok := matchFor(matches, "b")
	if !ok {
		t.Fatal("matches missing near-duplicate key \"b\"")
	}
	if math.Abs(a.Similarity-1.0) > 1e-9 {
		t.Errorf("sim(a) = %v, want 1.0", a.Similarity)
	}
	if !(a.Similarity > b.Similarity && b.Similarity > 0) {
		t.Errorf("want sim(a)=1.0 > sim(b)=%v > 0", b.Similarity)
	}
}

// Scenario 3: disjoint values rarely land in the same band.
func TestMinHashFeature_Disjoint(t *testing.T) {
	f := newTestFeature(t, 0)
	ctx := context.Background()

	if err := f.Record(ctx, "s", "a", "alpha beta gamma"); err != nil {
		t.Fatalf("Record(a) error = %v", err)
	}
	if err := f.Record(ctx, "s", "b", "xyzzy plover plugh"); err != nil {
		t.Fatalf("Record(b) error = %v", err)
	}

	matches, err := f.GetSimilar(ctx, "s", "a")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}

	if b, ok := matchFor(matches, "b"); ok && b.Similarity > 0.5 {
		t.Errorf("sim(a, b) = %v, want a low similarity for disjoint tokens", b.Similarity)
	}
}

// Scenario 4: scope isolation.
func TestMinHashFeature_ScopeIsolation(t *testing.T) {
	f := newTestFeature(t, 0)
	ctx := context.Background()

	if err := f.Record(ctx, "s1", "a", "the quick brown fox"); err != nil {
		t.Fatalf("Record(s1,a) error = %v", err)
	}
	if err := f.Record(ctx, "s2", "a", "completely unrelated words here"); err != nil {
		t.Fatalf("Record(s2,a) error = %v", err)
	}

	matches, err := f.GetSimilar(ctx, "s1", "a")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	for _, m := range matches {
		if m.Key != "a" {
			t.Errorf("scope s1 query returned unexpected candidate %q", m.Key)
		}
	}
	self, ok := matchFor(matches, "a")
	if !ok || math.Abs(self.Similarity-1.0) > 1e-9 {
		t.Errorf("self match in s1 = %+v, want similarity 1.0", self)
	}
}

// Scenario 5: multi-stream — a value yielding multiple streams is
// matched by either stream recorded separately as its own key.
func TestMinHashFeature_MultiStream(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()
	ctx := context.Background()

	tokenizer := TokenizerFunc[[]string](func(value []string) ([]Stream, error) {
		streams := make([]Stream, len(value))
		for i, v := range value {
			streams[i] = Stream(strings.Fields(v))
		}
		return streams, nil
	})

	f, err := NewMinHashFeature(client, MinHashFeatureConfig[[]string]{
		Label:        "frames",
		Rows:         1024,
		Permutations: 8,
		Bands:        4,
		Seed:         0,
		Tokenizer:    tokenizer,
	})
	if err != nil {
		t.Fatalf("NewMinHashFeature() error = %v", err)
	}

	if err := f.Record(ctx, "s", "multi", []string{"first exception frame text", "second exception frame text"}); err != nil {
		t.Fatalf("Record(multi) error = %v", err)
	}
	if err := f.Record(ctx, "s", "single", []string{"first exception frame text"}); err != nil {
		t.Fatalf("Record(single) error = %v", err)
	}

	matches, err := f.GetSimilar(ctx, "s", "single")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if _, ok := matchFor(matches, "multi"); !ok {
		t.Errorf("expected \"multi\" to be a candidate for \"single\": %+v", matches)
	}
}

func TestMinHashFeature_UnknownKeyReturnsEmpty(t *testing.T) {
	f := newTestFeature(t, 0)
	matches, err := f.GetSimilar(context.Background(), "s", "never-recorded")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %v, want empty", matches)
	}
}

func TestMinHashFeature_EmptyColumnSetSkipsStream(t *testing.T) {
	f := newTestFeature(t, 0)
	// An empty-string value tokenizes to zero whitespace-split tokens,
	// so Record should succeed without writing anything (spec's
	// empty-column-set case is not an error).
	if err := f.Record(context.Background(), "s", "empty", ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	matches, err := f.GetSimilar(context.Background(), "s", "empty")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %v, want empty for a never-written key", matches)
	}
}
