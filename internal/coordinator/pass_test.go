package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/groupsync/internal/cluster"
)

func TestRunPass(t *testing.T) {
	hosts := []string{"a", "b", "c", "d"}
	refuse := map[string]bool{"b": true, "d": true}

	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			var mu sync.Mutex
			var visited []string
			op := func(_ context.Context, host string) (bool, error) {
				mu.Lock()
				visited = append(visited, host)
				mu.Unlock()
				return !refuse[host], nil
			}

			outcomes, err := runPass(context.Background(), hosts, op, parallel)
			require.NoError(t, err)
			assert.Equal(t, cluster.OutcomeVector{
				{Host: "a", Succeeded: true},
				{Host: "b", Succeeded: false},
				{Host: "c", Succeeded: true},
				{Host: "d", Succeeded: false},
			}, outcomes)
			assert.ElementsMatch(t, hosts, visited)
			if !parallel {
				assert.Equal(t, hosts, visited)
			}
		})
	}
}

func TestRunPassStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	op := func(_ context.Context, host string) (bool, error) {
		if host == "b" {
			return false, boom
		}
		return true, nil
	}

	outcomes, err := runPass(context.Background(), []string{"a", "b", "c"}, op, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	var he *hostError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "b", he.host)
	assert.Equal(t, []string{"b"}, he.unknown)
	assert.Equal(t, cluster.OutcomeVector{{Host: "a", Succeeded: true}}, outcomes)
}

func TestRunPassParallelKeepsSiblingsRunning(t *testing.T) {
	boom := errors.New("boom")
	failed := make(chan struct{})
	op := func(ctx context.Context, host string) (bool, error) {
		switch host {
		case "b":
			close(failed)
			return false, boom
		case "c":
			return false, errors.New("timeout")
		}
		<-failed
		time.Sleep(20 * time.Millisecond)
		return true, ctx.Err()
	}

	outcomes, err := runPass(context.Background(), []string{"a", "b", "c", "d"}, op, true)
	var he *hostError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "b", he.host)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{"b", "c"}, he.unknown)
	assert.Equal(t, cluster.OutcomeVector{
		{Host: "a", Succeeded: true},
		{Host: "d", Succeeded: true},
	}, outcomes)
}

func TestErrorMatching(t *testing.T) {
	cwf := &ClusterWriteFailedError{Phase: cluster.PhaseDelete, GroupID: "g", Unresolved: []string{"h1", "h2"}}
	assert.True(t, errors.Is(cwf, ErrClusterWriteFailed))
	assert.False(t, errors.Is(cwf, ErrPassAborted))
	assert.Equal(t, "failed to delete group g on all nodes, rollback completed (inspect manually: h1, h2)", cwf.Error())

	cause := errors.New("dial tcp: connection refused")
	aborted := &PassAbortedError{Phase: cluster.PhaseCreate, GroupID: "g", Host: "h1", Err: cause}
	assert.True(t, errors.Is(aborted, ErrPassAborted))
	assert.True(t, errors.Is(aborted, cause))
	assert.Equal(t, "create pass for group g aborted at h1: dial tcp: connection refused", aborted.Error())

	d := Diagnostic{
		Kind:      DiagnosticPassAborted,
		Phase:     cluster.PhaseDelete,
		GroupID:   "g",
		Host:      "h2",
		Succeeded: []string{"h1"},
		Unknown:   []string{"h2", "h3"},
	}
	assert.Equal(t, "delete pass for group g aborted at h2, cluster may be partially updated (succeeded on: h1) (state unknown on: h2, h3)", d.Message())
}
