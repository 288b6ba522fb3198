// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.ObserveToolCall("shell", "ok", 20*time.Millisecond)
	m.ObserveToolCall("shell", "rejected", time.Millisecond)
	m.ObserveToolCall("shell", "ok", time.Millisecond)
	m.ObserveApproval("shell", "run command", "approved", "interactive")
	m.ObserveProcess("timeout", time.Second)
	m.ObserveProvision("rg", "installed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("shell", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("shell", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvalDecisions.WithLabelValues("run command", "approved", "interactive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processRuns.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.provisions.WithLabelValues("rg", "installed")))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewMetrics(reg) })
}

func TestMetrics_Unregistered(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.ObserveProcess("ok", time.Millisecond)
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	m.ObserveToolCall("read_file", "ok", time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), `agenttools_tools_calls_total{outcome="ok",tool="read_file"} 1`)
	assert.Contains(t, buf.String(), "# TYPE agenttools_tools_call_duration_seconds histogram")
}
