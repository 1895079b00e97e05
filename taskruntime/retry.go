package taskruntime

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
)

// retryDelay implements §7's f(category, retry_count): each recoverable
// category gets its own backoff shape. CONFIGURATION/DATA/PERMANENT never
// reach here since Category.Retryable() gates the call.
func retryDelay(category pipelineerr.Category, retryCount int) time.Duration {
	switch category {
	case pipelineerr.CategoryTransient:
		return exponentialStep(2*time.Second, 60*time.Second, 0.3, retryCount)
	case pipelineerr.CategoryRateLimit:
		// Keyed per provider upstream by EX's own token-bucket wait;
		// TR's re-enqueue delay just needs to be long enough that the
		// provider's window has plausibly reopened by the next attempt.
		return exponentialStep(5*time.Second, 5*time.Minute, 0.3, retryCount)
	case pipelineerr.CategoryResource:
		return linearStep(10*time.Second, 2*time.Minute, retryCount)
	default:
		return 0
	}
}

// exponentialStep walks a cenkalti/backoff ExponentialBackOff forward
// retryCount+1 steps and returns the resulting interval, so the same
// retry_count always derives the same delay shape (jitter aside) without
// TR having to keep a live backoff object alive across process restarts.
func exponentialStep(initial, max time.Duration, jitter float64, retryCount int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = max
	eb.RandomizationFactor = jitter
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	eb.Reset()

	var d time.Duration
	for i := 0; i <= retryCount; i++ {
		d = eb.NextBackOff()
	}
	return d
}

func linearStep(unit, max time.Duration, retryCount int) time.Duration {
	d := unit * time.Duration(retryCount+1)
	if d > max {
		return max
	}
	return d
}
