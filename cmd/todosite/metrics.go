// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/todosite/todosite/pkg/errutil"
)

// logMetrics writes every counter and histogram gathered from g at debug
// level.
func logMetrics(ctx context.Context, logger *slog.Logger, g prometheus.Gatherer) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	families, err := g.Gather()
	if err != nil {
		errutil.LogErrorContext(ctx, logger, "gathering metrics failed", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				attrs = append(attrs, "count", h.GetSampleCount(), "sum_seconds", h.GetSampleSum())
			default:
				continue
			}
			logger.DebugContext(ctx, "metric", attrs...)
		}
	}
}
