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
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Match is one ranked result from a similarity query.
type Match struct {
	Key        string
	Similarity float64
}

// Signature is one stream's MinHash signature, split into its bands.
// Exposed so callers who need per-stream signatures directly (an
// offline batch job, a debugging tool) can compute one without going
// through Record.
type Signature struct {
	Entries []uint32
	bands   *PermutationFamily
}

// Bands returns the signature's B band values, already comma-encoded
// the way they are stored (spec's bandvalue key encoding, §6).
func (s Signature) Bands() []string {
	out := make([]string, s.bands.Bands())
	for b := 0; b < s.bands.Bands(); b++ {
		out[b] = encodeBand(s.bands.Band(s.Entries, b))
	}
	return out
}

// encodeBand joins a band's signature entries as decimal integers
// separated by ','. No quoting or escaping is applied: signature
// entries are integers in [0, R), so ',' is unambiguous (spec §6). This
// is the same scheme as the original Python format_buckets.
// TODO: switch to a fixed-width binary encoding if R ever grows past
// what fits comfortably in a comma-joined string key.
func encodeBand(entries []uint32) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = strconv.FormatUint(uint64(e), 10)
	}
	return strings.Join(parts, ",")
}

// MinHashFeatureConfig configures a MinHashFeature.
type MinHashFeatureConfig[V any] struct {
	// Label identifies this feature (e.g. "message", "frames").
	Label string
	// Namespace is the index namespace; defaults to "sim".
	Namespace string
	// Rows, Permutations, Bands, Seed parameterize the permutation
	// family (spec §4.2). Typical reference values: rows=0xFFFF,
	// permutations=16, bands=8, seed=0.
	Rows         uint32
	Permutations int
	Bands        int
	Seed         uint64
	// Tokenizer turns an application value into token streams.
	Tokenizer Tokenizer[V]
	// FilterSelf, if true, removes the query key from its own
	// get_similar results. Default false: the query key is retained as
	// a candidate with similarity 1.0 (spec's Open Question; the
	// reference Python implementation keeps it).
	FilterSelf bool
	// Metrics, if non-nil, is used to report record/query
	// instrumentation for this feature's Label.
	Metrics *Metrics
	// Logger receives optional diagnostic events (e.g. an empty column
	// set causing a stream to be skipped). Defaults to slog.Default().
	Logger *slog.Logger
}

// MinHashFeature records MinHash/LSH signatures for values of type V into
// a sharded key-value store and answers near-duplicate queries over
// them. It is the core of the index (spec §4.4-4.5).
type MinHashFeature[V any] struct {
	label      string
	namespace  string
	family     *PermutationFamily
	tokenizer  Tokenizer[V]
	filterSelf bool
	store      KVClient
	metrics    *metrics
	logger     *slog.Logger
}

// NewMinHashFeature constructs a MinHashFeature from cfg, backed by
// store. Returns a configuration error if rows/permutations/bands are
// invalid or no tokenizer was supplied.
func NewMinHashFeature[V any](store KVClient, cfg MinHashFeatureConfig[V]) (*MinHashFeature[V], error) {
	if cfg.Tokenizer == nil {
		return nil, ErrNoTokenizer
	}
	family, err := NewPermutationFamily(cfg.Rows, cfg.Permutations, cfg.Bands, cfg.Seed)
	if err != nil {
		return nil, err
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "sim"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MinHashFeature[V]{
		label:      cfg.Label,
		namespace:  namespace,
		family:     family,
		tokenizer:  cfg.Tokenizer,
		filterSelf: cfg.FilterSelf,
		store:      store,
		metrics:    cfg.Metrics.forLabel(cfg.Label),
		logger:     logger,
	}, nil
}

// forwardKey is the forward bucket key: "{ns}:{label}:{scope}:0:{band}:{bandvalue}".
func (f *MinHashFeature[V]) forwardKey(scope string, band int, bandValue string) string {
	return fmt.Sprintf("%s:%s:%s:0:%d:%s", f.namespace, f.label, scope, band, bandValue)
}

// reverseKey is the reverse histogram key: "{ns}:{label}:{scope}:{key}:1:{band}:{key}".
func (f *MinHashFeature[V]) reverseKey(scope, key string, band int) string {
	return fmt.Sprintf("%s:%s:%s:%s:1:%d:%s", f.namespace, f.label, scope, key, band, key)
}

// GetSignature computes the MinHash signature for a single token stream,
// or (Signature{}, false) if the stream's column set is empty (spec
// §4.3). Exposed publicly for callers that need a stream's signature
// directly instead of going through Record.
func (f *MinHashFeature[V]) GetSignature(stream Stream) (Signature, bool) {
	if len(stream) == 0 {
		return Signature{}, false
	}
	columns := make(map[uint32]struct{}, len(stream))
	for _, token := range stream {
		columns[column(token, f.family.Rows())] = struct{}{}
	}
	entries, ok := f.family.Signature(columns)
	if !ok {
		return Signature{}, false
	}
	return Signature{Entries: entries, bands: f.family}, true
}

// Record tokenizes value, derives one signature per stream, and writes
// the forward bucket memberships and reverse histogram increments for
// each stream's bands. Each stream is written in its own pipelined
// batch (spec §4.4/§7): a failure on one stream's batch does not
// prevent earlier streams from having already been written.
func (f *MinHashFeature[V]) Record(ctx context.Context, scope, key string, value V) error {
	start := time.Now()
	if f.metrics != nil {
		defer observeDuration(f.metrics.recordDuration, start)
	}

	streams, err := f.tokenizer.Tokenize(value)
	if err != nil {
		return &TokenizerError{Label: f.label, Err: err}
	}

	for _, stream := range streams {
		sig, ok := f.GetSignature(stream)
		if !ok {
			if f.metrics != nil {
				incCounter(f.metrics.skippedStreams)
			}
			f.logger.Debug("similarity: skipping stream with empty column set",
				"label", f.label, "scope", scope, "key", key)
			continue
		}

		bandValues := sig.Bands()
		err := f.store.WithBatch(ctx, func(b *Batch) {
			for band, bv := range bandValues {
				b.SAdd(f.forwardKey(scope, band, bv), key)
				b.ZIncrBy(f.reverseKey(scope, key, band), bv, 1)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// histogram is a band-value -> count map, normalized to a probability
// distribution by dividing by the sum of counts (spec §4.5 step 1).
type histogram map[string]float64

func normalize(counts map[string]float64) histogram {
	if len(counts) == 0 {
		return histogram{}
	}
	var total float64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return histogram{}
	}
	out := make(histogram, len(counts))
	for k, c := range counts {
		out[k] = c / total
	}
	return out
}

// readHistograms reads all B bands of the reverse index for key and
// normalizes each band independently.
func (f *MinHashFeature[V]) readHistograms(ctx context.Context, scope, key string) ([]histogram, error) {
	futures := make([]*ZFuture, f.family.Bands())
	err := f.store.WithBatch(ctx, func(b *Batch) {
		for band := 0; band < f.family.Bands(); band++ {
			futures[band] = b.ZRangeWithScores(f.reverseKey(scope, key, band))
		}
	})
	if err != nil {
		return nil, err
	}

	out := make([]histogram, f.family.Bands())
	for band, fut := range futures {
		entries, err := fut.Entries()
		if err != nil {
			return nil, &StoreError{Op: "zrange", Err: err}
		}
		counts := make(map[string]float64, len(entries))
		for _, e := range entries {
			counts[e.Member] = e.Score
		}
		out[band] = normalize(counts)
	}
	return out, nil
}

// GetSimilar returns candidate keys ranked by similarity to key,
// highest first (spec §4.5).
func (f *MinHashFeature[V]) GetSimilar(ctx context.Context, scope, key string) ([]Match, error) {
	start := time.Now()
	if f.metrics != nil {
		defer observeDuration(f.metrics.queryDuration, start)
	}

	queryHist, err := f.readHistograms(ctx, scope, key)
	if err != nil {
		return nil, err
	}

	allEmpty := true
	for _, h := range queryHist {
		if len(h) > 0 {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return nil, nil
	}

	// Candidate generation: per band, union the forward buckets for
	// every band-value present in the query's histogram for that band.
	candidateSet := make(map[string]struct{})

	perBand := make([][]*SetFuture, f.family.Bands())
	err = f.store.WithBatch(ctx, func(b *Batch) {
		for band, h := range queryHist {
			for bv := range h {
				perBand[band] = append(perBand[band], b.SMembers(f.forwardKey(scope, band, bv)))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	for _, bucket := range perBand {
		for _, fut := range bucket {
			members, err := fut.Members()
			if err != nil {
				return nil, &StoreError{Op: "smembers", Err: err}
			}
			for m := range members {
				candidateSet[m] = struct{}{}
			}
		}
	}

	if f.metrics != nil {
		observeSize(f.metrics.candidateSize, len(candidateSet))
	}
	if len(candidateSet) == 0 {
		return nil, nil
	}

	candidateKeys := make([]string, 0, len(candidateSet))
	for c := range candidateSet {
		candidateKeys = append(candidateKeys, c)
	}

	candidateHistFutures := make(map[string][]*ZFuture, len(candidateKeys))
	err = f.store.WithBatch(ctx, func(b *Batch) {
		for _, c := range candidateKeys {
			futs := make([]*ZFuture, f.family.Bands())
			for band := 0; band < f.family.Bands(); band++ {
				futs[band] = b.ZRangeWithScores(f.reverseKey(scope, c, band))
			}
			candidateHistFutures[c] = futs
		}
	})
	if err != nil {
		return nil, err
	}

	results := make([]Match, 0, len(candidateKeys))
	for _, c := range candidateKeys {
		futs := candidateHistFutures[c]
		hist := make([]histogram, f.family.Bands())
		for band, fut := range futs {
			entries, err := fut.Entries()
			if err != nil {
				return nil, &StoreError{Op: "zrange", Err: err}
			}
			counts := make(map[string]float64, len(entries))
			for _, e := range entries {
				counts[e.Member] = e.Score
			}
			hist[band] = normalize(counts)
		}

		if f.filterSelf && c == key {
			continue
		}
		sim := similarity(queryHist, hist)
		results = append(results, Match{Key: c, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Key < results[j].Key
	})
	return results, nil
}

// similarity computes sim(q, c) = 1 - (sum_b L2(dist_q[b], dist_c[b]) / sqrt(2)) / B
// (spec §4.5 step 4).
func similarity(q, c []histogram) float64 {
	if len(q) != len(c) {
		return 0
	}
	var sum float64
	for b := range q {
		sum += l2Distance(q[b], c[b]) / math.Sqrt2
	}
	return 1 - sum/float64(len(q))
}

// l2Distance is the Euclidean distance between two distributions over
// the union of their keys; a key missing from one side counts as 0.
func l2Distance(a, b histogram) float64 {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	var sum float64
	for k := range seen {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
