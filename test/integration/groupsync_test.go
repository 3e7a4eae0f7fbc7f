package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/coordinator"
	"github.com/dreamware/groupsync/internal/node"
	"github.com/dreamware/groupsync/internal/nodeclient"
)

// testNode is one node service with switchable write faults.
type testNode struct {
	server       *httptest.Server
	node         *node.Node
	router       http.Handler
	refuseCreate atomic.Bool
	refuseDelete atomic.Bool
}

func (tn *testNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodPost && tn.refuseCreate.Load()) ||
		(r.Method == http.MethodDelete && tn.refuseDelete.Load()) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	tn.router.ServeHTTP(w, r)
}

// TestSystem is a coordinator in front of real node services on loopback.
type TestSystem struct {
	t        *testing.T
	nodes    []*testNode
	hosts    []string
	coord    *coordinator.Coordinator
	recorder *coordinator.Recorder
}

func NewTestSystem(t *testing.T, nodes int, parallel bool) *TestSystem {
	t.Helper()
	ts := &TestSystem{t: t, recorder: &coordinator.Recorder{}}
	for i := 0; i < nodes; i++ {
		tn := &testNode{node: node.New(node.Options{})}
		tn.router = tn.node.Router()
		tn.server = httptest.NewServer(tn)
		t.Cleanup(tn.server.Close)
		ts.nodes = append(ts.nodes, tn)
		ts.hosts = append(ts.hosts, tn.server.URL)
	}

	logger := zaptest.NewLogger(t)
	coord, err := coordinator.New(coordinator.Options{
		Hosts:       ts.hosts,
		Client:      nodeclient.NewHTTPClient(nodeclient.Options{Timeout: 2 * time.Second, Logger: logger}),
		Logger:      logger,
		Diagnostics: ts.recorder,
		Parallel:    parallel,
	})
	require.NoError(t, err)
	ts.coord = coord
	return ts
}

// Has reports whether node i holds groupID, asking it over HTTP.
func (ts *TestSystem) Has(i int, groupID string) bool {
	ts.t.Helper()
	resp, err := http.Get(cluster.GroupURL(ts.hosts[i], groupID))
	require.NoError(ts.t, err)
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Groups returns node i's group count from /info.
func (ts *TestSystem) Groups(i int) int {
	ts.t.Helper()
	resp, err := http.Get(cluster.BaseURL(ts.hosts[i]) + "/info")
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	var info node.Info
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&info))
	return info.Groups
}

func (ts *TestSystem) Stop(i int) {
	ts.nodes[i].server.Close()
}

func succeeded(v cluster.OutcomeVector) []bool {
	out := make([]bool, len(v))
	for i, o := range v {
		out[i] = o.Succeeded
	}
	return out
}

func TestGroupLifecycle(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			ts := NewTestSystem(t, 3, parallel)
			ctx := context.Background()

			t.Run("create on fresh cluster", func(t *testing.T) {
				v, err := ts.coord.CreateGroup(ctx, "ops")
				require.NoError(t, err)
				assert.Equal(t, []bool{true, true, true}, succeeded(v))
				for i := range ts.hosts {
					assert.Equal(t, ts.hosts[i], v[i].Host)
					assert.True(t, ts.Has(i, "ops"))
				}
			})

			t.Run("create again is idempotent", func(t *testing.T) {
				v, err := ts.coord.CreateGroup(ctx, "ops")
				require.NoError(t, err)
				assert.True(t, v.AllSucceeded())
				for i := range ts.hosts {
					assert.Equal(t, 1, ts.Groups(i))
				}
			})

			t.Run("delete everywhere", func(t *testing.T) {
				v, err := ts.coord.DeleteGroup(ctx, "ops")
				require.NoError(t, err)
				assert.True(t, v.AllSucceeded())
				for i := range ts.hosts {
					assert.False(t, ts.Has(i, "ops"))
				}
			})

			t.Run("delete again fails without side effects", func(t *testing.T) {
				_, err := ts.coord.DeleteGroup(ctx, "ops")
				var wf *coordinator.ClusterWriteFailedError
				require.ErrorAs(t, err, &wf)
				assert.Equal(t, []bool{false, false, false}, succeeded(wf.Outcomes))
				assert.Empty(t, wf.Unresolved)
				assert.Empty(t, ts.recorder.Diagnostics())
			})
		})
	}
}

func TestCreateRollback(t *testing.T) {
	ts := NewTestSystem(t, 3, false)
	ts.nodes[1].refuseCreate.Store(true)

	_, err := ts.coord.CreateGroup(context.Background(), "eng")
	var wf *coordinator.ClusterWriteFailedError
	require.ErrorAs(t, err, &wf)
	assert.Equal(t, []bool{true, false, true}, succeeded(wf.Outcomes))
	assert.Empty(t, wf.Unresolved)

	for i := range ts.hosts {
		assert.False(t, ts.Has(i, "eng"), "node %d still has the group", i)
	}
	assert.Empty(t, ts.recorder.Diagnostics())
}

func TestDeleteRollbackRestoresGroup(t *testing.T) {
	ts := NewTestSystem(t, 3, false)
	ctx := context.Background()

	_, err := ts.coord.CreateGroup(ctx, "sales")
	require.NoError(t, err)
	ts.nodes[2].refuseDelete.Store(true)

	_, err = ts.coord.DeleteGroup(ctx, "sales")
	var wf *coordinator.ClusterWriteFailedError
	require.ErrorAs(t, err, &wf)
	assert.Equal(t, []bool{true, true, false}, succeeded(wf.Outcomes))

	for i := range ts.hosts {
		assert.True(t, ts.Has(i, "sales"), "node %d lost the group", i)
	}
}

func TestIncompleteRollbackIsReported(t *testing.T) {
	ts := NewTestSystem(t, 3, false)
	ctx := context.Background()

	_, err := ts.coord.CreateGroup(ctx, "hr")
	require.NoError(t, err)
	// node 0 deletes but cannot recreate, node 2 refuses the delete
	ts.nodes[0].refuseCreate.Store(true)
	ts.nodes[2].refuseDelete.Store(true)

	_, err = ts.coord.DeleteGroup(ctx, "hr")
	var wf *coordinator.ClusterWriteFailedError
	require.ErrorAs(t, err, &wf)
	assert.Equal(t, []bool{true, true, false}, succeeded(wf.Outcomes))
	assert.Equal(t, []string{ts.hosts[0]}, wf.Unresolved)

	assert.False(t, ts.Has(0, "hr"))
	assert.True(t, ts.Has(1, "hr"))
	assert.True(t, ts.Has(2, "hr"))

	diags := ts.recorder.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, coordinator.DiagnosticCompensationIncomplete, diags[0].Kind)
	assert.Equal(t, ts.hosts[0], diags[0].Host)
	assert.Equal(t, cluster.PhaseDelete, diags[0].Phase)
}

func TestStoppedNodeAbortsPass(t *testing.T) {
	ts := NewTestSystem(t, 3, false)
	ts.Stop(1)

	_, err := ts.coord.CreateGroup(context.Background(), "infra")
	var aborted *coordinator.PassAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.ErrorIs(t, err, nodeclient.ErrTransport)
	assert.Equal(t, ts.hosts[1], aborted.Host)
	require.Len(t, aborted.Completed, 1)
	assert.True(t, aborted.Completed[0].Succeeded)
	assert.Equal(t, []string{ts.hosts[1]}, aborted.Unknown)

	assert.True(t, ts.Has(0, "infra"))
	assert.False(t, ts.Has(2, "infra"))

	diags := ts.recorder.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, coordinator.DiagnosticPassAborted, diags[0].Kind)
}

func TestStoppedNodeAbortsParallelPass(t *testing.T) {
	ts := NewTestSystem(t, 3, true)
	ts.Stop(1)

	_, err := ts.coord.CreateGroup(context.Background(), "infra")
	var aborted *coordinator.PassAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, []string{ts.hosts[1]}, aborted.Unknown)

	// the live hosts finish their calls and are reported
	assert.Equal(t, []bool{true, true}, succeeded(aborted.Completed))
	assert.Equal(t, ts.hosts[0], aborted.Completed[0].Host)
	assert.Equal(t, ts.hosts[2], aborted.Completed[1].Host)
	assert.True(t, ts.Has(0, "infra"))
	assert.True(t, ts.Has(2, "infra"))

	diags := ts.recorder.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, []string{ts.hosts[0], ts.hosts[2]}, diags[0].Succeeded)
}

func TestConcurrentPassesOnDistinctGroups(t *testing.T) {
	ts := NewTestSystem(t, 3, true)
	ctx := context.Background()

	const groups = 20
	var wg sync.WaitGroup
	errs := make([]error, groups)
	for i := 0; i < groups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ts.coord.CreateGroup(ctx, fmt.Sprintf("g-%d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "group %d", i)
	}
	for i := range ts.hosts {
		assert.Equal(t, groups, ts.Groups(i))
	}
}
