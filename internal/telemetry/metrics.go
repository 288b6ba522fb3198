// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "agenttools"

// Metrics holds the collectors for one registry.
type Metrics struct {
	toolCalls         *prometheus.CounterVec
	toolDuration      *prometheus.HistogramVec
	approvalDecisions *prometheus.CounterVec
	processRuns       *prometheus.CounterVec
	processDuration   prometheus.Histogram
	provisions        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tools",
				Name:      "calls_total",
				Help:      "Tool calls by tool and outcome (ok, error, rejected).",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tools",
				Name:      "call_duration_seconds",
				Help:      "Wall time spent in each tool call, approval included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		approvalDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "approval",
				Name:      "decisions_total",
				Help:      "Approval decisions by action kind, decision and deciding policy.",
			},
			[]string{"action", "decision", "source"},
		),
		processRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "process",
				Name:      "runs_total",
				Help:      "External process runs by outcome (ok, failed, timeout, error).",
			},
			[]string{"outcome"},
		),
		processDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "process",
				Name:      "duration_seconds",
				Help:      "Wall time of external processes.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
		provisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provision",
				Name:      "total",
				Help:      "Binary lookups by how they were satisfied (local, path, installed, failed).",
			},
			[]string{"binary", "outcome"},
		),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}
	return m, nil
}

// MustNewMetrics is NewMetrics that panics on registration errors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.toolCalls, m.toolDuration, m.approvalDecisions,
		m.processRuns, m.processDuration, m.provisions,
	}
}

// ObserveToolCall records one finished tool call.
func (m *Metrics) ObserveToolCall(tool, outcome string, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveApproval implements approval.Observer. The tool label is dropped to
// keep cardinality bounded by action kinds.
func (m *Metrics) ObserveApproval(_, action, decision, source string) {
	m.approvalDecisions.WithLabelValues(action, decision, source).Inc()
}

// ObserveProcess implements process.Observer.
func (m *Metrics) ObserveProcess(outcome string, d time.Duration) {
	m.processRuns.WithLabelValues(outcome).Inc()
	m.processDuration.Observe(d.Seconds())
}

// ObserveProvision implements provision.Observer.
func (m *Metrics) ObserveProvision(binary, outcome string) {
	m.provisions.WithLabelValues(binary, outcome).Inc()
}

// WriteText writes every metric family from g in the Prometheus text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
