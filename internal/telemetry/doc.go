// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry counts tool activity with Prometheus collectors.
//
// A single Metrics value implements the observer hooks of the approval,
// process and provision packages as well as the tool executor, so wiring a
// session for metrics is a matter of passing the same value everywhere.
//
// # Metrics
//
//   - agenttools_tools_calls_total{tool,outcome}
//   - agenttools_tools_call_duration_seconds{tool}
//   - agenttools_approval_decisions_total{action,decision,source}
//   - agenttools_process_runs_total{outcome}
//   - agenttools_process_duration_seconds
//   - agenttools_provision_total{binary,outcome}
package telemetry
