// Package metrics implements the Metrics Collector (MC): query
// composition over the time-bucketed counters and rolling error log
// taskruntime writes into SS for every stage transition and task outcome
// (§4.10).
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Collector answers MC's three supported queries (§4.10: "batch
// performance report, error summary by window, throughput per hour")
// against SS's metrics:{bucket}:{stage}:{status} counters and
// metrics:errors:{bucket} log.
type Collector struct {
	ss *statestore.Store
}

func New(ss *statestore.Store) *Collector {
	return &Collector{ss: ss}
}

// stages lists every pipeline stage a report iterates, in pipeline order
// (§2, §4.1-§4.6).
var stages = []types.Stage{
	types.StageOCR,
	types.StageChunking,
	types.StageEntityExtraction,
	types.StageEntityResolution,
	types.StageRelationshipBuilding,
	types.StageFinalization,
}

// statuses lists every task-outcome label taskruntime emits a counter
// under, per pool.go's emitMetric call sites.
var statuses = []string{"completed", "retry_scheduled", "failed", "cancelled"}

// StageCounts is one stage's outcome tally within a window.
type StageCounts struct {
	Stage     types.Stage      `json:"stage"`
	Completed int64            `json:"completed"`
	Retried   int64            `json:"retried"`
	Failed    int64            `json:"failed"`
	Cancelled int64            `json:"cancelled"`
	Counts    map[string]int64 `json:"-"`
}

// PerformanceReport is MC's "batch performance report" query: per-stage
// outcome counts summed across every hourly bucket in [from, to] (§4.10).
type PerformanceReport struct {
	From   time.Time     `json:"from"`
	To     time.Time     `json:"to"`
	Stages []StageCounts `json:"stages"`
}

// PerformanceReport sums metrics:{bucket}:{stage}:{status} across every
// hour bucket between from and to, inclusive (§4.10, §6).
func (c *Collector) PerformanceReport(ctx context.Context, from, to time.Time) (*PerformanceReport, error) {
	report := &PerformanceReport{From: from, To: to}
	for _, stage := range stages {
		counts := StageCounts{Stage: stage, Counts: make(map[string]int64, len(statuses))}
		for _, bucket := range hourBuckets(from, to) {
			for _, status := range statuses {
				n, err := c.ss.GetMetric(ctx, bucket, string(stage), status)
				if err != nil {
					return nil, fmt.Errorf("get metric %s/%s/%s: %w", bucket, stage, status, err)
				}
				counts.Counts[status] += n
			}
		}
		counts.Completed = counts.Counts["completed"]
		counts.Retried = counts.Counts["retry_scheduled"]
		counts.Failed = counts.Counts["failed"]
		counts.Cancelled = counts.Counts["cancelled"]
		report.Stages = append(report.Stages, counts)
	}
	return report, nil
}

// ErrorSummary is MC's "error summary by window" query: every classified
// error recorded in [from, to], newest last (§4.10).
func (c *Collector) ErrorSummary(ctx context.Context, from, to time.Time) ([]statestore.ErrorRecord, error) {
	var records []statestore.ErrorRecord
	for _, bucket := range hourBuckets(from, to) {
		bucketRecords, err := c.ss.GetErrorSummary(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("get error summary for bucket %s: %w", bucket, err)
		}
		for _, rec := range bucketRecords {
			if rec.At.Before(from) || rec.At.After(to) {
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// HourlyThroughput is one hour's completed-task count, MC's "throughput
// per hour" query (§4.10).
type HourlyThroughput struct {
	Hour      time.Time `json:"hour"`
	Completed int64     `json:"completed"`
}

// ThroughputPerHour reports the number of tasks that completed in each
// hour bucket between from and to, summed across every stage.
func (c *Collector) ThroughputPerHour(ctx context.Context, from, to time.Time) ([]HourlyThroughput, error) {
	var result []HourlyThroughput
	for _, hour := range truncatedHours(from, to) {
		bucket := statestore.MetricsBucket(hour)
		var total int64
		for _, stage := range stages {
			n, err := c.ss.GetMetric(ctx, bucket, string(stage), "completed")
			if err != nil {
				return nil, fmt.Errorf("get metric %s/%s/completed: %w", bucket, stage, err)
			}
			total += n
		}
		result = append(result, HourlyThroughput{Hour: hour, Completed: total})
	}
	return result, nil
}

// hourBuckets enumerates every MetricsBucket string covering [from, to].
func hourBuckets(from, to time.Time) []string {
	var buckets []string
	for _, hour := range truncatedHours(from, to) {
		buckets = append(buckets, statestore.MetricsBucket(hour))
	}
	return buckets
}

// truncatedHours enumerates the start-of-hour timestamps covering
// [from, to], inclusive of both endpoints' hours.
func truncatedHours(from, to time.Time) []time.Time {
	if to.Before(from) {
		return nil
	}
	start := from.Truncate(time.Hour)
	end := to.Truncate(time.Hour)
	var hours []time.Time
	for h := start; !h.After(end); h = h.Add(time.Hour) {
		hours = append(hours, h)
	}
	return hours
}
