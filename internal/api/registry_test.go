package api

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
	"github.com/sells-group/discovery-console/internal/store"
)

// slowSessions holds ListSessions for one user until release closes.
type slowSessions struct {
	discovery.SessionStore
	user    string
	entered chan struct{}
	release chan struct{}
	lists   atomic.Int32
}

func (s *slowSessions) ListSessions(ctx context.Context, userID string) ([]model.DiscoverySession, error) {
	if userID == s.user {
		s.lists.Add(1)
		s.entered <- struct{}{}
		<-s.release
	}
	return s.SessionStore.ListSessions(ctx, userID)
}

func newSlowRegistry(t *testing.T, slowUser string) (*Registry, *slowSessions) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	sessions := &slowSessions{
		SessionStore: st,
		user:         slowUser,
		entered:      make(chan struct{}, 4),
		release:      make(chan struct{}),
	}
	reg := NewRegistry(discovery.Deps{
		Catalog:  st,
		Sessions: sessions,
		Results:  st,
		Executor: &stubExecutor{},
		Attacher: st,
	})
	return reg, sessions
}

func TestRegistry_OpeningUserDoesNotBlockOthers(t *testing.T) {
	reg, sessions := newSlowRegistry(t, "slow")
	ctx := context.Background()

	fast, err := reg.Get(ctx, "fast")
	require.NoError(t, err)

	opened := make(chan *discovery.Workbench, 1)
	go func() {
		wb, _ := reg.Get(ctx, "slow")
		opened <- wb
	}()
	<-sessions.entered

	got := make(chan *discovery.Workbench, 1)
	go func() {
		wb, _ := reg.Get(ctx, "fast")
		got <- wb
	}()
	select {
	case wb := <-got:
		assert.Same(t, fast, wb)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("cached user waited on another user's workbench opening")
	}

	// A user not yet cached opens concurrently too.
	other, err := reg.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", other.UserID())

	close(sessions.release)
	slow := <-opened
	require.NotNil(t, slow)
	assert.Equal(t, "slow", slow.UserID())
	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_ConcurrentFirstRequestsShareOneOpen(t *testing.T) {
	reg, sessions := newSlowRegistry(t, "slow")
	ctx := context.Background()

	const callers = 4
	var wg sync.WaitGroup
	benches := make([]*discovery.Workbench, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			benches[i], _ = reg.Get(ctx, "slow")
		}()
	}
	<-sessions.entered
	// Give the other callers time to join the pending open.
	time.Sleep(50 * time.Millisecond)
	close(sessions.release)
	wg.Wait()

	require.NotNil(t, benches[0])
	for _, wb := range benches[1:] {
		assert.Same(t, benches[0], wb)
	}
	assert.EqualValues(t, 1, sessions.lists.Load())

	all, err := sessions.SessionStore.ListSessions(ctx, "slow")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
