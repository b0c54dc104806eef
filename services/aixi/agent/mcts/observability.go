// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "mcaixi.mcts"

// Metrics for searches. Instruments come from the global meter provider,
// which telemetry.Init configures; before that they are no-ops.
var (
	searchesTotal    metric.Int64Counter
	simulationsTotal metric.Int64Counter
	nodesTotal       metric.Int64Counter
	degenerateTotal  metric.Int64Counter
	revertFailures   metric.Int64Counter
	searchDuration   metric.Float64Histogram
	searchTreeNodes  metric.Int64Histogram
	rootValue        metric.Float64Histogram
	metricsOnce      sync.Once
	metricsErr       error
)

// initMetrics creates the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		var err error

		if searchesTotal, err = meter.Int64Counter(
			"mcaixi_searches_total",
			metric.WithDescription("Total SelectAction calls by outcome"),
		); err != nil {
			metricsErr = err
			return
		}
		if simulationsTotal, err = meter.Int64Counter(
			"mcaixi_simulations_total",
			metric.WithDescription("Total completed rollouts"),
		); err != nil {
			metricsErr = err
			return
		}
		if nodesTotal, err = meter.Int64Counter(
			"mcaixi_search_nodes_total",
			metric.WithDescription("Total search tree nodes created"),
		); err != nil {
			metricsErr = err
			return
		}
		if degenerateTotal, err = meter.Int64Counter(
			"mcaixi_search_degenerate_total",
			metric.WithDescription("Searches that fell back to a uniform choice"),
		); err != nil {
			metricsErr = err
			return
		}
		if revertFailures, err = meter.Int64Counter(
			"mcaixi_search_revert_failures_total",
			metric.WithDescription("Searches that left the context model modified"),
		); err != nil {
			metricsErr = err
			return
		}
		if searchDuration, err = meter.Float64Histogram(
			"mcaixi_search_duration_seconds",
			metric.WithDescription("SelectAction wall-clock duration"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if searchTreeNodes, err = meter.Int64Histogram(
			"mcaixi_search_tree_nodes",
			metric.WithDescription("Search tree size per decision"),
		); err != nil {
			metricsErr = err
			return
		}
		rootValue, metricsErr = meter.Float64Histogram(
			"mcaixi_search_root_value",
			metric.WithDescription("Normalized value estimate of the chosen action"),
		)
	})
	return metricsErr
}

// tracer wraps span and log emission for searches.
//
// Thread Safety: Safe for concurrent use.
type tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

func newTracer(logger *slog.Logger, enabled bool) *tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &tracer{
		tracer:  otel.Tracer(instrumentationName),
		logger:  logger,
		enabled: enabled,
	}
}

// startSearch opens the span for one SelectAction call.
func (t *tracer) startSearch(ctx context.Context, cfg Config, policy string, legal int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "mcts.select_action",
		trace.WithAttributes(
			attribute.Int("mcts.horizon", cfg.Horizon),
			attribute.Int("mcts.simulations", cfg.Simulations),
			attribute.Int("mcts.workers", cfg.Workers),
			attribute.Int("mcts.legal_actions", legal),
			attribute.Float64("mcts.exploration_constant", cfg.ExplorationConstant),
			attribute.String("mcts.selection_policy", policy),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// endSearch records the result on the span, metrics and log.
func (t *tracer) endSearch(ctx context.Context, span trace.Span, res Result, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Degenerate:
		outcome = "degenerate"
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.Int("mcts.result.action", res.Action),
		attribute.Float64("mcts.result.value", res.Value),
		attribute.Int("mcts.result.simulations", res.Simulations),
		attribute.Int("mcts.result.nodes", res.Nodes),
		attribute.Bool("mcts.result.degenerate", res.Degenerate),
		attribute.String("mcts.result.exhausted_by", res.ExhaustedBy),
	)
	if res.Limit != nil {
		span.AddEvent("budget limit", trace.WithAttributes(
			attribute.String("mcts.limit", res.Limit.Error()),
		))
	}
	span.End()

	if initMetrics() == nil {
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		searchesTotal.Add(ctx, 1, attrs)
		simulationsTotal.Add(ctx, int64(res.Simulations))
		nodesTotal.Add(ctx, int64(res.Nodes))
		searchDuration.Record(ctx, res.Elapsed.Seconds(), attrs)
		searchTreeNodes.Record(ctx, int64(res.Nodes))
		if res.Degenerate {
			degenerateTotal.Add(ctx, 1)
		} else if err == nil {
			rootValue.Record(ctx, res.Value)
		}
	}

	t.logger.DebugContext(ctx, "search complete",
		slog.Int("action", res.Action),
		slog.Float64("value", res.Value),
		slog.Int("simulations", res.Simulations),
		slog.Int("nodes", res.Nodes),
		slog.Bool("degenerate", res.Degenerate),
		slog.Duration("elapsed", res.Elapsed),
	)
}

// revertFailed counts a broken revert contract.
func (t *tracer) revertFailed(ctx context.Context) {
	if initMetrics() == nil {
		revertFailures.Add(ctx, 1)
	}
	t.logger.ErrorContext(ctx, "context model not restored after search")
}
