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
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ZEntry is one (member, score) pair from a sorted-set range read.
type ZEntry struct {
	Member string
	Score  float64
}

// SetFuture is a handle to a pending SMEMBERS read. Its result is only
// valid after the owning Batch has been flushed.
type SetFuture struct {
	cmd *redis.StringSliceCmd
}

// Members returns the set contents read by this future. Must only be
// called after the Batch that created it has flushed.
func (f *SetFuture) Members() (map[string]struct{}, error) {
	vals, err := f.cmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out, nil
}

// ZFuture is a handle to a pending sorted-set range read, descending by
// score with scores included (the reverse-index histogram read).
type ZFuture struct {
	cmd *redis.ZSliceCmd
}

// Entries returns the (member, score) pairs read by this future, highest
// score first. Must only be called after the owning Batch has flushed.
func (f *ZFuture) Entries() ([]ZEntry, error) {
	vals, err := f.cmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]ZEntry, len(vals))
	for i, z := range vals {
		member, _ := z.Member.(string)
		out[i] = ZEntry{Member: member, Score: z.Score}
	}
	return out, nil
}

// Batch is a scoped pipeline: every command enqueued on it is sent
// together when the WithBatch call that created it flushes the
// pipeline, which happens on every exit path of that call, including a
// panic unwinding through the caller's function (spec's "pipelined
// client" design note). The read calls (SMembers, ZRangeWithScores)
// return a handle whose value is populated only after that flush.
type Batch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

// SAdd enqueues adding member to the unordered set at setKey.
func (b *Batch) SAdd(setKey, member string) {
	b.pipe.SAdd(b.ctx, setKey, member)
}

// SMembers enqueues a full read of the set at setKey.
func (b *Batch) SMembers(setKey string) *SetFuture {
	return &SetFuture{cmd: b.pipe.SMembers(b.ctx, setKey)}
}

// ZIncrBy enqueues incrementing member's score in the sorted set at
// sortedSetKey by delta, creating the sorted set/member if absent.
func (b *Batch) ZIncrBy(sortedSetKey, member string, delta float64) {
	b.pipe.ZIncrBy(b.ctx, sortedSetKey, delta, member)
}

// ZRangeWithScores enqueues a full, score-descending read of the sorted
// set at sortedSetKey.
func (b *Batch) ZRangeWithScores(sortedSetKey string) *ZFuture {
	return &ZFuture{cmd: b.pipe.ZRevRangeWithScores(b.ctx, sortedSetKey, 0, -1)}
}

// KVClient is the abstraction the core consumes: a pipelined client over
// a sharded key-value store. Implementations must be safe for
// concurrent use.
type KVClient interface {
	// WithBatch runs fn against a freshly opened pipeline and flushes it
	// exactly once, regardless of how fn returns (including panics). A
	// failed flush surfaces as a *StoreError.
	WithBatch(ctx context.Context, fn func(b *Batch)) error
	Close() error
}

// RingClient is a KVClient backed by a redis.Ring, which shards keys
// across a configured set of addresses using consistent (rendezvous)
// hashing so that adding or removing a shard reshuffles only the keys
// that must move.
type RingClient struct {
	ring      *redis.Ring
	closeOnce sync.Once
}

// NewRingClient builds a RingClient over the given shard addresses,
// keyed by an arbitrary name (e.g. "shard0") for logging/metrics
// purposes on the redis side.
func NewRingClient(shardAddrs map[string]string) *RingClient {
	return &RingClient{ring: redis.NewRing(&redis.RingOptions{Addrs: shardAddrs})}
}

// NewRingClientFromOptions builds a RingClient from fully specified
// redis.RingOptions, for callers that need TLS, auth, or pool tuning.
func NewRingClientFromOptions(opts *redis.RingOptions) *RingClient {
	return &RingClient{ring: redis.NewRing(opts)}
}

// WithBatch implements KVClient.
func (c *RingClient) WithBatch(ctx context.Context, fn func(b *Batch)) (err error) {
	pipe := c.ring.Pipeline()
	b := &Batch{ctx: ctx, pipe: pipe}
	defer func() {
		_, flushErr := pipe.Exec(ctx)
		if flushErr != nil && !errors.Is(flushErr, redis.Nil) {
			err = &StoreError{Op: "pipeline.exec", Err: flushErr}
		}
	}()
	fn(b)
	return nil
}

// Close closes the underlying ring connections. Safe to call multiple
// times (idempotent, same guarantee the teacher's VSA.Close gives for
// its background aggregator).
func (c *RingClient) Close() (err error) {
	c.closeOnce.Do(func() {
		err = c.ring.Close()
	})
	return err
}
