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

import "strings"

// Stream is one finite sequence of hashable tokens extracted from a
// record's value. A single value may yield multiple streams (spec's
// multi-exception example); each gets its own signature.
type Stream []string

// Tokenizer turns an application value into zero or more token streams.
// Implementations must be pure and deterministic: the same value always
// yields the same streams. Different MinHashFeatures may use different
// concrete V, since tokenizers are dispatched per label, not globally.
type Tokenizer[V any] interface {
	Tokenize(value V) ([]Stream, error)
}

// TokenizerFunc adapts a plain function to the Tokenizer interface.
type TokenizerFunc[V any] func(value V) ([]Stream, error)

// Tokenize calls f.
func (f TokenizerFunc[V]) Tokenize(value V) ([]Stream, error) { return f(value) }

// Shingle transforms a token sequence into its overlapping n-grams: for
// tokens t0, t1, ..., it yields (ti, ..., ti+n-1) for every valid i. If
// tokens has fewer than n elements it yields nothing. The result
// preserves input order.
func Shingle(tokens []string, n int) []Stream {
	if n <= 0 || len(tokens) < n {
		return nil
	}

	shingles := make([]Stream, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		gram := make(Stream, n)
		copy(gram, tokens[i:i+n])
		shingles = append(shingles, gram)
	}
	return shingles
}

// WhitespaceTokenizer splits a string value on whitespace and, with
// ShingleSize <= 0, emits the resulting tokens as a single stream. It is
// a reference tokenizer used
// by tests and simple callers; real features typically wrap a
// domain-specific tokenizer (stack frame extraction, message
// normalization, etc.) which this module treats as an external
// collaborator (spec §1).
type WhitespaceTokenizer struct {
	// ShingleSize, if > 0, shingles the whitespace-split tokens into
	// n-grams and emits each n-gram as its own stream; the tokens of
	// each n-gram are still hashed one by one.
	ShingleSize int
}

// Tokenize implements Tokenizer[string].
func (t WhitespaceTokenizer) Tokenize(value string) ([]Stream, error) {
	fields := strings.Fields(value)
	if t.ShingleSize <= 0 {
		return []Stream{Stream(fields)}, nil
	}
	return Shingle(fields, t.ShingleSize), nil
}
