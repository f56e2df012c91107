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
	"sort"
)

// Feature is the capability every labeled similarity channel exposes to
// a FeatureManager. AsFeature adapts a MinHashFeature[V] to it by
// type-asserting the Record value to V; a FeatureManager holds several Features, each
// potentially keyed to a different concrete value type, and deals with
// them only through this interface (spec §9's "dynamic tokenizer
// dispatch" note — the manager itself has no generic type parameter).
type Feature interface {
	Record(ctx context.Context, scope, key string, value any) error
	GetSimilar(ctx context.Context, scope, key string) ([]Match, error)
}

// featureAdapter adapts a *MinHashFeature[V] to Feature by asserting the
// any-typed value passed by FeatureManager back to V before delegating.
type featureAdapter[V any] struct {
	feature *MinHashFeature[V]
}

// AsFeature wraps a concrete *MinHashFeature[V] so it can be registered
// with a FeatureManager alongside features of other value types.
func AsFeature[V any](f *MinHashFeature[V]) Feature {
	return featureAdapter[V]{feature: f}
}

func (a featureAdapter[V]) Record(ctx context.Context, scope, key string, value any) error {
	v, ok := value.(V)
	if !ok {
		return &TokenizerError{Label: a.feature.label, Err: errWrongValueType}
	}
	return a.feature.Record(ctx, scope, key, v)
}

func (a featureAdapter[V]) GetSimilar(ctx context.Context, scope, key string) ([]Match, error) {
	return a.feature.GetSimilar(ctx, scope, key)
}

var errWrongValueType = &valueTypeError{}

type valueTypeError struct{}

func (*valueTypeError) Error() string { return "similarity: value does not match feature's type" }

// WeightedFeature pairs a Feature with its fusion weight. Weights are
// non-negative scalars; by convention they sum to 1 across a
// FeatureManager's configuration, but this is not enforced (spec §4.6).
type WeightedFeature struct {
	Weight  float64
	Feature Feature
}

// FeatureManager composes several named Features with scalar weights,
// fanning out writes and fusing query results into a single ranking.
type FeatureManager struct {
	labels  []string // preserves configuration order for deterministic iteration
	weights map[string]WeightedFeature
}

// NewFeatureManager constructs a FeatureManager from an ordered mapping
// of labels to weighted features. labels fixes the order in which
// features are called; config supplies the weight and Feature for each.
// Fused results with equal scores are ordered by key, not by label.
func NewFeatureManager(labels []string, config map[string]WeightedFeature) *FeatureManager {
	ordered := make([]string, len(labels))
	copy(ordered, labels)
	return &FeatureManager{labels: ordered, weights: config}
}

// Record dispatches value to every configured feature. Per spec §4.6,
// failures are per-feature and independent in principle, but this
// implementation is fail-fast: dispatch stops at the first error and
// returns it, since a partially-written record across features is no
// more recoverable than one fully failed (alternative: isolate
// per-label failures and return a joined error; not adopted here to
// match the fail-fast fusion policy already required for GetSimilar).
func (m *FeatureManager) Record(ctx context.Context, scope, key string, value any) error {
	for _, label := range m.labels {
		wf, ok := m.weights[label]
		if !ok {
			return ErrUnknownLabel
		}
		if err := wf.Feature.Record(ctx, scope, key, value); err != nil {
			return err
		}
	}
	return nil
}

// GetSimilar collects each feature's ranked list, fuses them by
// weighted sum, and returns the fused ranking sorted by score
// descending. A feature that returns no candidates contributes 0 to
// every score and injects none of its own (spec §4.6 edge case).
// Fusion is fail-fast: a failing sub-feature fails the whole query.
func (m *FeatureManager) GetSimilar(ctx context.Context, scope, key string) ([]Match, error) {
	scores := make(map[string]float64)
	order := make([]string, 0)

	for _, label := range m.labels {
		wf, ok := m.weights[label]
		if !ok {
			return nil, ErrUnknownLabel
		}
		matches, err := wf.Feature.GetSimilar(ctx, scope, key)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if _, seen := scores[match.Key]; !seen {
				order = append(order, match.Key)
			}
			scores[match.Key] += wf.Weight * match.Similarity
		}
	}

	results := make([]Match, len(order))
	for i, k := range order {
		results[i] = Match{Key: k, Similarity: scores[k]}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Key < results[j].Key
	})
	return results, nil
}
