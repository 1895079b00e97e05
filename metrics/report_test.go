package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeott/legal-doc-processor-sub013/metrics"
	"github.com/joeott/legal-doc-processor-sub013/statestore"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

func newTestRedis(t *testing.T) *statestore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return statestore.NewWithClient(client, "")
}

func TestPerformanceReport_SumsCountersAcrossStagesAndBuckets(t *testing.T) {
	ss := newTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ss.IncrMetric(ctx, statestore.MetricsBucket(now), string(types.StageOCR), "completed"))
	require.NoError(t, ss.IncrMetric(ctx, statestore.MetricsBucket(now), string(types.StageOCR), "completed"))
	require.NoError(t, ss.IncrMetric(ctx, statestore.MetricsBucket(now), string(types.StageOCR), "failed"))
	require.NoError(t, ss.IncrMetric(ctx, statestore.MetricsBucket(now), string(types.StageChunking), "completed"))

	c := metrics.New(ss)
	report, err := c.PerformanceReport(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, report.Stages, 6)

	byStage := make(map[types.Stage]metrics.StageCounts, len(report.Stages))
	for _, s := range report.Stages {
		byStage[s.Stage] = s
	}
	assert.Equal(t, int64(2), byStage[types.StageOCR].Completed)
	assert.Equal(t, int64(1), byStage[types.StageOCR].Failed)
	assert.Equal(t, int64(1), byStage[types.StageChunking].Completed)
	assert.Equal(t, int64(0), byStage[types.StageFinalization].Completed)
}

func TestErrorSummary_FiltersRecordsOutsideWindow(t *testing.T) {
	ss := newTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	inWindow := statestore.ErrorRecord{DocumentID: "doc-1", Stage: "ocr", Category: "DATA", Message: "empty ocr", At: now}
	require.NoError(t, ss.RecordError(ctx, statestore.MetricsBucket(now), inWindow))

	old := now.Add(-48 * time.Hour)
	outOfWindow := statestore.ErrorRecord{DocumentID: "doc-2", Stage: "ocr", Category: "DATA", Message: "stale", At: old}
	require.NoError(t, ss.RecordError(ctx, statestore.MetricsBucket(old), outOfWindow))

	c := metrics.New(ss)
	records, err := c.ErrorSummary(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-1", records[0].DocumentID)
}

func TestThroughputPerHour_CountsCompletedTasksPerBucket(t *testing.T) {
	ss := newTestRedis(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Hour)

	require.NoError(t, ss.IncrMetric(ctx, statestore.MetricsBucket(now), string(types.StageOCR), "completed"))
	require.NoError(t, ss.IncrMetric(ctx, statestore.MetricsBucket(now), string(types.StageChunking), "completed"))
	prevHour := now.Add(-time.Hour)
	require.NoError(t, ss.IncrMetric(ctx, statestore.MetricsBucket(prevHour), string(types.StageOCR), "completed"))

	c := metrics.New(ss)
	throughput, err := c.ThroughputPerHour(ctx, prevHour, now)
	require.NoError(t, err)
	require.Len(t, throughput, 2)
	assert.Equal(t, int64(1), throughput[0].Completed)
	assert.Equal(t, int64(2), throughput[1].Completed)
}
