package health

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestChecker() *Checker {
	return NewChecker(zerolog.New(os.Stderr))
}

func TestRunAll_CollectsAllChecks(t *testing.T) {
	c := newTestChecker()
	c.Register("store", func(ctx context.Context) Status { return StatusOK })
	c.Register("summarizer", func(ctx context.Context) Status { return StatusDegraded })

	results := c.RunAll(context.Background())
	assert.Equal(t, StatusOK, results["store"])
	assert.Equal(t, StatusDegraded, results["summarizer"])
}

func TestIsReady_DegradedStillReady(t *testing.T) {
	c := newTestChecker()
	c.Register("summarizer", func(ctx context.Context) Status { return StatusDegraded })
	assert.True(t, c.IsReady(context.Background()))
}

func TestIsReady_DownBlocksReadiness(t *testing.T) {
	c := newTestChecker()
	c.Register("store", func(ctx context.Context) Status { return StatusDown })
	assert.False(t, c.IsReady(context.Background()))
}

func TestCached_ReturnsLastResults(t *testing.T) {
	c := newTestChecker()
	c.Register("store", func(ctx context.Context) Status { return StatusOK })
	c.RunAll(context.Background())
	assert.Equal(t, StatusOK, c.Cached()["store"])
}
