package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/metrics"
	"github.com/dreamware/groupsync/internal/nodeclient"
)

// Options configures a Coordinator.
type Options struct {
	// Hosts is the ordered cluster membership. Order fixes both apply and
	// rollback order. Duplicates and empty entries are rejected.
	Hosts []string
	// Client reaches the node service on each host. Required.
	Client nodeclient.Client
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Diagnostics receives operator-facing diagnostics. Defaults to a
	// LogSink on Logger.
	Diagnostics DiagnosticSink
	// Metrics may be nil.
	Metrics *metrics.CoordinatorMetrics
	// Parallel fans each pass out to all hosts at once instead of visiting
	// them one at a time. Outcome order is the same either way.
	Parallel bool
}

// Coordinator makes group creation and deletion cluster-wide.
//
// It holds no state between passes beyond its configuration, so concurrent
// passes on different group ids are independent. Concurrent passes on the
// same group id are not serialised and may interleave on the nodes.
type Coordinator struct {
	hosts       []string
	client      nodeclient.Client
	logger      *zap.Logger
	diagnostics DiagnosticSink
	metrics     *metrics.CoordinatorMetrics
	parallel    bool
}

// New validates opts and returns a Coordinator. It fails when no client is
// given or the host list has empty or repeated entries.
func New(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, errors.New("coordinator requires a node client")
	}
	for i, host := range opts.Hosts {
		if host == "" {
			return nil, fmt.Errorf("host %d is empty", i)
		}
		if slices.Index(opts.Hosts[:i], host) >= 0 {
			return nil, fmt.Errorf("host %s is listed more than once", host)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	diagnostics := opts.Diagnostics
	if diagnostics == nil {
		diagnostics = LogSink{Logger: logger}
	}

	return &Coordinator{
		hosts:       slices.Clone(opts.Hosts),
		client:      opts.Client,
		logger:      logger,
		diagnostics: diagnostics,
		metrics:     opts.Metrics,
		parallel:    opts.Parallel,
	}, nil
}

// Hosts returns the configured host list.
func (c *Coordinator) Hosts() []string {
	return slices.Clone(c.hosts)
}

// CreateGroup creates groupID on every host.
//
// A host that already has the group counts as done and is not asked to
// create it again, so repeating a successful or partially failed create is
// safe. If any host refuses, the group is deleted again from every host
// that had it after the pass, and a *ClusterWriteFailedError is returned.
func (c *Coordinator) CreateGroup(ctx context.Context, groupID string) (cluster.OutcomeVector, error) {
	return c.run(ctx, cluster.PhaseCreate, groupID)
}

// DeleteGroup deletes groupID from every host.
//
// There is no existence check: a host that does not have the group refuses
// the delete and fails the pass, so deleting twice is not idempotent. On
// failure the group is recreated on every host it was deleted from and a
// *ClusterWriteFailedError is returned.
func (c *Coordinator) DeleteGroup(ctx context.Context, groupID string) (cluster.OutcomeVector, error) {
	return c.run(ctx, cluster.PhaseDelete, groupID)
}

func (c *Coordinator) run(ctx context.Context, phase cluster.Phase, groupID string) (cluster.OutcomeVector, error) {
	if groupID == "" {
		return nil, ErrBadRequest
	}

	passID := PassIDFromContext(ctx)
	if passID == "" {
		passID = uuid.NewString()
	}
	logger := c.logger.With(
		zap.String("passId", passID),
		zap.String("phase", string(phase)),
		zap.String("groupId", groupID))
	logger.Info("starting pass", zap.Int("hosts", len(c.hosts)), zap.Bool("parallel", c.parallel))

	outcomes, err := runPass(ctx, c.hosts, c.forward(phase, groupID), c.parallel)
	if err != nil {
		return nil, c.abort(logger, passID, phase, groupID, outcomes, err)
	}

	if outcomes.AllSucceeded() {
		logger.Info("pass succeeded")
		c.metrics.ObservePass(string(phase), metrics.ResultSucceeded)
		return outcomes, nil
	}

	logger.Warn("pass failed, compensating", zap.Any("outcomes", outcomes))
	unresolved := c.compensate(ctx, passID, phase, groupID, outcomes)
	c.metrics.ObservePass(string(phase), metrics.ResultFailed)

	return nil, &ClusterWriteFailedError{
		PassID:     passID,
		Phase:      phase,
		GroupID:    groupID,
		Outcomes:   outcomes,
		Unresolved: unresolved,
	}
}

func (c *Coordinator) abort(logger *zap.Logger, passID string, phase cluster.Phase, groupID string, completed cluster.OutcomeVector, err error) error {
	var host string
	var unknown []string
	var he *hostError
	if errors.As(err, &he) {
		host = he.host
		unknown = he.unknown
		err = he.err
	}

	logger.Warn("pass aborted",
		zap.String("host", host),
		zap.Strings("unknown", unknown),
		zap.Error(err),
		zap.Any("completed", completed))
	c.metrics.ObservePass(string(phase), metrics.ResultAborted)
	c.diagnostics.Report(Diagnostic{
		Kind:      DiagnosticPassAborted,
		PassID:    passID,
		Phase:     phase,
		GroupID:   groupID,
		Host:      host,
		Err:       err,
		Succeeded: completed.SucceededHosts(),
		Unknown:   unknown,
	})

	return &PassAbortedError{
		PassID:    passID,
		Phase:     phase,
		GroupID:   groupID,
		Host:      host,
		Completed: completed,
		Unknown:   unknown,
		Err:       err,
	}
}

// forward returns the per-host operation for phase.
func (c *Coordinator) forward(phase cluster.Phase, groupID string) hostOp {
	if phase == cluster.PhaseDelete {
		return func(ctx context.Context, host string) (bool, error) {
			return c.apply(ctx, cluster.PhaseDelete, host, groupID)
		}
	}

	return func(ctx context.Context, host string) (bool, error) {
		exists, err := c.call(ctx, nodeclient.OpExists, host, groupID)
		if err != nil || exists {
			return exists, err
		}
		return c.apply(ctx, cluster.PhaseCreate, host, groupID)
	}
}

// apply issues the bare create or delete for phase, without any pre-check.
func (c *Coordinator) apply(ctx context.Context, phase cluster.Phase, host, groupID string) (bool, error) {
	if phase == cluster.PhaseCreate {
		return c.call(ctx, nodeclient.OpCreate, host, groupID)
	}
	return c.call(ctx, nodeclient.OpDelete, host, groupID)
}

func (c *Coordinator) call(ctx context.Context, op nodeclient.Op, host, groupID string) (bool, error) {
	var ok bool
	var err error
	switch op {
	case nodeclient.OpExists:
		ok, err = c.client.Exists(ctx, host, groupID)
	case nodeclient.OpCreate:
		ok, err = c.client.TryCreate(ctx, host, groupID)
	case nodeclient.OpDelete:
		ok, err = c.client.TryDelete(ctx, host, groupID)
	default:
		return false, fmt.Errorf("unknown node operation %q", op)
	}

	switch {
	case err != nil:
		c.metrics.ObserveHostCall(string(op), metrics.CallTransportError)
	case ok:
		c.metrics.ObserveHostCall(string(op), metrics.CallTrue)
	default:
		c.metrics.ObserveHostCall(string(op), metrics.CallFalse)
	}
	return ok, err
}

type passIDKey struct{}

// WithPassID attaches a caller-chosen pass id to ctx. Passes started with
// such a context log and report under that id instead of a generated one.
func WithPassID(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, passIDKey{}, passID)
}

// PassIDFromContext returns the id set by WithPassID, or "".
func PassIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(passIDKey{}).(string)
	return id
}
