// Package coordinator makes group creation and deletion appear cluster-wide
// across a fixed list of independent nodes, and rolls back partial progress
// when a node refuses.
//
// # Overview
//
// The nodes share nothing and do not replicate. The coordinator has no log
// and no locks; everything it knows about a group it learns during a pass
// and forgets afterwards. A pass either converges on every host or is
// compensated on a best-effort basis and reported as failed.
//
// # Passes
//
// A pass applies one operation to every host, in host list order, and
// records one Outcome per host:
//
//	create:  exists? ──yes──▶ (host, true)
//	            │
//	            no ──▶ TryCreate ──▶ (host, result)
//
//	delete:  TryDelete ──▶ (host, result)
//
// Create checks for the group first, so a host that already has it counts
// as done and re-running a failed create converges. Delete has no check;
// deleting a group twice fails the second time.
//
// With Options.Parallel the hosts are contacted concurrently. The outcome
// vector is still in host order and every call is joined before the pass
// is evaluated.
//
// # Compensation
//
// If any outcome is false the pass failed. Before the caller hears about it,
// the inverse operation is applied to every host recorded as true, in the
// same order as the pass (not reversed):
//
//	outcomes:  h1 ✓   h2 ✓   h3 ✗   h4 ✓
//	rollback:  del    del    -      del
//
// A failing compensating call is not retried and does not stop the sweep.
// It is reported to the DiagnosticSink as CompensationIncomplete and the
// host is listed in ClusterWriteFailedError.Unresolved. The caller gets
// ErrClusterWriteFailed either way.
//
// # Transport failures
//
// If a node can't be reached, or answers an existence check with something
// other than found / not found, its state is unknown. The pass stops there
// with a PassAbortedError and is not compensated; a PassAborted diagnostic
// carries the host so an operator can look. Nothing is retried.
//
// # Concurrency
//
// A Coordinator is safe for concurrent use. Passes on different group ids
// are independent. Passes on the same group id are not serialised and can
// interleave on the nodes; callers that need exclusion must provide it.
//
// # Host monitoring
//
// HostMonitor probes each host's /health endpoint on an interval and keeps
// a status per host for operators. Passes do not consult it.
//
// # Usage Example
//
//	c, err := coordinator.New(coordinator.Options{
//	    Hosts:  []string{"127.0.0.1:5000", "127.0.0.1:5001", "127.0.0.1:5002"},
//	    Client: nodeclient.NewHTTPClient(nodeclient.Options{Logger: logger}),
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	outcomes, err := c.CreateGroup(ctx, "group-1")
//	if errors.Is(err, coordinator.ErrClusterWriteFailed) {
//	    // rolled back; see err.(*coordinator.ClusterWriteFailedError).Unresolved
//	}
package coordinator
