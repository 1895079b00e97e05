package taskruntime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
)

func TestRetryDelay_TransientGrowsWithRetryCount(t *testing.T) {
	first := retryDelay(pipelineerr.CategoryTransient, 0)
	later := retryDelay(pipelineerr.CategoryTransient, 5)
	assert.Greater(t, later, first)
	assert.LessOrEqual(t, later, 90*time.Second) // max 60s plus jitter headroom
}

func TestRetryDelay_ResourceIsLinearAndCapped(t *testing.T) {
	assert.Equal(t, 10*time.Second, retryDelay(pipelineerr.CategoryResource, 0))
	assert.Equal(t, 20*time.Second, retryDelay(pipelineerr.CategoryResource, 1))
	assert.Equal(t, 2*time.Minute, retryDelay(pipelineerr.CategoryResource, 100))
}

func TestRetryDelay_NonRetryableCategoriesReturnZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryDelay(pipelineerr.CategoryConfiguration, 0))
	assert.Equal(t, time.Duration(0), retryDelay(pipelineerr.CategoryData, 0))
	assert.Equal(t, time.Duration(0), retryDelay(pipelineerr.CategoryPermanent, 0))
}
