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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors a MinHashFeature reports to.
// A nil *metrics (what forLabel returns for a nil *Metrics) is valid
// and simply skips instrumentation, so features are usable without a
// registry in tests.
type metrics struct {
	recordDuration prometheus.Observer
	queryDuration  prometheus.Observer
	candidateSize  prometheus.Observer
	skippedStreams prometheus.Counter
}

// Metrics is the set of Prometheus collectors for one labeled feature.
// Register them with a prometheus.Registerer once and pass the result
// to NewMinHashFeature in MinHashFeatureConfig.Metrics.
type Metrics struct {
	RecordDuration *prometheus.HistogramVec
	QueryDuration  *prometheus.HistogramVec
	CandidateSize  *prometheus.HistogramVec
	SkippedStreams *prometheus.CounterVec
}

// NewMetrics constructs and registers the collectors used by
// MinHashFeature, namespaced under "similarity". Safe to call once per
// process; registering the same Metrics on multiple registries is the
// caller's responsibility.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "similarity",
			Name:      "record_duration_seconds",
			Help:      "Time spent writing a record's signatures to the backing store.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"label"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "similarity",
			Name:      "query_duration_seconds",
			Help:      "Time spent answering a get_similar query.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"label"}),
		CandidateSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "similarity",
			Name:      "candidate_set_size",
			Help:      "Number of candidate keys considered per query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"label"}),
		SkippedStreams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "similarity",
			Name:      "skipped_streams_total",
			Help:      "Streams skipped because their column set was empty.",
		}, []string{"label"}),
	}
	reg.MustRegister(m.RecordDuration, m.QueryDuration, m.CandidateSize, m.SkippedStreams)
	return m
}

func (m *Metrics) forLabel(label string) *metrics {
	if m == nil {
		return nil
	}
	return &metrics{
		recordDuration: m.RecordDuration.WithLabelValues(label),
		queryDuration:  m.QueryDuration.WithLabelValues(label),
		candidateSize:  m.CandidateSize.WithLabelValues(label),
		skippedStreams: m.SkippedStreams.WithLabelValues(label),
	}
}

func observeDuration(o prometheus.Observer, start time.Time) {
	if o == nil {
		return
	}
	o.Observe(time.Since(start).Seconds())
}

func observeSize(o prometheus.Observer, n int) {
	if o == nil {
		return
	}
	o.Observe(float64(n))
}

func incCounter(c prometheus.Counter) {
	if c == nil {
		return
	}
	c.Inc()
}
