package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAll_EmptyRegistryHealthy(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestCheckAll_AggregatesSubsystems(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(_ context.Context) Status {
		return Status{Name: "database", Healthy: true}
	})
	r.Register("sweeper", func(_ context.Context) Status {
		return Status{Name: "sweeper", Healthy: true, Detail: "last pass 2m ago"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	require.Len(t, statuses, 2)
	assert.Equal(t, "database", statuses[0].Name)
}

func TestCheckAll_OneFailureTurnsAggregateUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(_ context.Context) Status {
		return Status{Name: "database", Healthy: false, Detail: "connection refused"}
	})
	r.Register("sweeper", func(_ context.Context) Status {
		return Status{Name: "sweeper", Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 2)
	assert.Equal(t, "connection refused", statuses[0].Detail)
	assert.True(t, statuses[1].Healthy)
}

func TestCheckAll_CheckerGetsBoundedContext(t *testing.T) {
	r := NewRegistry()
	r.Register("slow", func(ctx context.Context) Status {
		deadline, ok := ctx.Deadline()
		return Status{
			Name:    "slow",
			Healthy: ok && time.Until(deadline) <= DefaultCheckTimeout,
		}
	})

	healthy, _ := r.CheckAll(context.Background())
	assert.True(t, healthy)
}

func TestRegistry_ConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("probe", func(_ context.Context) Status {
				return Status{Name: "probe", Healthy: true}
			})
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()
}
