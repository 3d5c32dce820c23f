package pipeline

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/aspl-project/aspl/internal/article"
)

// StagePolicy bounds one stage: attempt budget and per-attempt timeout.
type StagePolicy struct {
	MaxAttempts int
	Timeout     time.Duration
}

// Policy configures the whole pipeline: per-stage budgets, retry backoff,
// the overall wall-clock budget, and the cache TTL applied at persist.
type Policy struct {
	Render     StagePolicy
	Preprocess StagePolicy
	Extract    StagePolicy
	Validate   StagePolicy
	Persist    StagePolicy

	BackoffBase   time.Duration
	BackoffMax    time.Duration
	OverallBudget time.Duration
	CacheTTL      time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Render:        StagePolicy{MaxAttempts: 2, Timeout: 30 * time.Second},
		Preprocess:    StagePolicy{MaxAttempts: 1, Timeout: 10 * time.Second},
		Extract:       StagePolicy{MaxAttempts: 2, Timeout: 20 * time.Second},
		Validate:      StagePolicy{MaxAttempts: 1, Timeout: 5 * time.Second},
		Persist:       StagePolicy{MaxAttempts: 1, Timeout: 5 * time.Second},
		BackoffBase:   250 * time.Millisecond,
		BackoffMax:    5 * time.Second,
		OverallBudget: 2 * time.Minute,
		CacheTTL:      24 * time.Hour,
	}
}

// forStage returns the policy for a stage.
func (p Policy) forStage(stage article.Stage) StagePolicy {
	switch stage {
	case article.StageRender:
		return p.Render
	case article.StagePreprocess:
		return p.Preprocess
	case article.StageExtract:
		return p.Extract
	case article.StageValidate:
		return p.Validate
	case article.StagePersist:
		return p.Persist
	default:
		return StagePolicy{MaxAttempts: 1}
	}
}

// backoff returns the jittered wait before retry attempt. Half the
// exponential delay is fixed, the other half uniformly random.
func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.BackoffBase) * math.Pow(2, float64(attempt))
	if delay > float64(p.BackoffMax) {
		delay = float64(p.BackoffMax)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
