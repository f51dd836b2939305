package logger

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Cumulative pipeline counters. Components bump these as work flows
// through; StartReport logs and publishes them periodically.
var (
	errorCount       int64
	warnCount        int64
	upstreamCalls    int64
	upstreamErrors   int64
	cacheHits        int64
	cyclesDone       int64
	recordsPublished int64
	alertsSent       int64
)

func recordWarn()  { atomic.AddInt64(&warnCount, 1) }
func recordError() { atomic.AddInt64(&errorCount, 1) }

// IncrementUpstreamCall records one REST request attempt.
func IncrementUpstreamCall() { atomic.AddInt64(&upstreamCalls, 1) }

// IncrementUpstreamError records one failed REST request.
func IncrementUpstreamError() { atomic.AddInt64(&upstreamErrors, 1) }

// IncrementCacheHit records one cache short-circuit.
func IncrementCacheHit() { atomic.AddInt64(&cacheHits, 1) }

// IncrementCycle records one completed refresh cycle.
func IncrementCycle() { atomic.AddInt64(&cyclesDone, 1) }

// IncrementPublished records one broadcast record.
func IncrementPublished() { atomic.AddInt64(&recordsPublished, 1) }

// IncrementAlert records one dispatched alert.
func IncrementAlert() { atomic.AddInt64(&alertsSent, 1) }

// StartReport periodically logs a pipeline summary together with process
// resource usage, and forwards the same gauges to CloudWatch when it is
// configured. The goroutine exits with the context.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitReport(ctx, log)
			}
		}
	}()
}

func emitReport(ctx context.Context, log *Log) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fields := Fields{
		"cycles":            atomic.LoadInt64(&cyclesDone),
		"upstream_calls":    atomic.LoadInt64(&upstreamCalls),
		"upstream_errors":   atomic.LoadInt64(&upstreamErrors),
		"cache_hits":        atomic.LoadInt64(&cacheHits),
		"records_published": atomic.LoadInt64(&recordsPublished),
		"alerts_sent":       atomic.LoadInt64(&alertsSent),
		"warns":             atomic.LoadInt64(&warnCount),
		"errors":            atomic.LoadInt64(&errorCount),
		"goroutines":        runtime.NumGoroutine(),
		"heap_mb":           float64(memStats.HeapAlloc) / (1024 * 1024),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		fields["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields["memory_percent"] = vm.UsedPercent
	}

	log.WithComponent("report").WithFields(fields).Info("pipeline report")

	data := make([]cwtypes.MetricDatum, 0, len(fields))
	for name, value := range fields {
		var val float64
		switch v := value.(type) {
		case int64:
			val = float64(v)
		case int:
			val = float64(v)
		case float64:
			val = v
		default:
			continue
		}
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(val),
		})
	}
	publishMetrics(ctx, data)
}
