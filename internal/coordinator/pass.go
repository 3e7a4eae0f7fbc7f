package coordinator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/groupsync/internal/cluster"
)

// hostOp applies one logical operation to one host. A false result is an
// application-level refusal; a non-nil error aborts the pass.
type hostOp func(ctx context.Context, host string) (bool, error)

// hostError ties an aborting error to the host that produced it. unknown
// lists, in host order, every host whose call failed in the pass; host is
// the first of them.
type hostError struct {
	host    string
	err     error
	unknown []string
}

func (e *hostError) Error() string { return e.host + ": " + e.err.Error() }

func (e *hostError) Unwrap() error { return e.err }

// runPass applies op to every host and returns one outcome per host in host
// order. It knows nothing about what op does.
//
// A failed call aborts the pass with a *hostError. Sequential mode stops at
// the failing host and returns the outcomes before it. Parallel mode has
// every call already in flight, so it lets each one finish and returns the
// outcome of every call that answered; calls are never cancelled by a
// sibling's failure, since a cancelled call may still have landed.
func runPass(ctx context.Context, hosts []string, op hostOp, parallel bool) (cluster.OutcomeVector, error) {
	if parallel {
		return runParallel(ctx, hosts, op)
	}
	return runSequential(ctx, hosts, op)
}

func runSequential(ctx context.Context, hosts []string, op hostOp) (cluster.OutcomeVector, error) {
	outcomes := make(cluster.OutcomeVector, 0, len(hosts))
	for _, host := range hosts {
		ok, err := op(ctx, host)
		if err != nil {
			return outcomes, &hostError{host: host, err: err, unknown: []string{host}}
		}
		outcomes = append(outcomes, cluster.Outcome{Host: host, Succeeded: ok})
	}
	return outcomes, nil
}

func runParallel(ctx context.Context, hosts []string, op hostOp) (cluster.OutcomeVector, error) {
	results := make([]bool, len(hosts))
	errs := make([]error, len(hosts))

	var g errgroup.Group
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			// each goroutine owns its slot; Wait orders these writes before the reads below
			results[i], errs[i] = op(ctx, host)
			return errs[i]
		})
	}
	_ = g.Wait()

	outcomes := make(cluster.OutcomeVector, 0, len(hosts))
	var failed *hostError
	for i, host := range hosts {
		if errs[i] == nil {
			outcomes = append(outcomes, cluster.Outcome{Host: host, Succeeded: results[i]})
			continue
		}
		if failed == nil {
			failed = &hostError{host: host, err: errs[i]}
		}
		failed.unknown = append(failed.unknown, host)
	}
	if failed != nil {
		return outcomes, failed
	}
	return outcomes, nil
}
