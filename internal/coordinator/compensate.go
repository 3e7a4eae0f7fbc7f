package coordinator

import (
	"context"

	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/metrics"
)

// compensate undoes phase on every host the vector records as succeeded,
// in vector order, and returns the hosts it could not restore.
//
// Hosts recorded as failed are never contacted. A failing inverse call is
// not retried and does not stop the sweep; it is reported to the
// diagnostic sink instead. The sweep ignores cancellation of ctx so that it
// always visits every succeeded host; per-call timeouts still apply.
func (c *Coordinator) compensate(ctx context.Context, passID string, phase cluster.Phase, groupID string, outcomes cluster.OutcomeVector) []string {
	ctx = context.WithoutCancel(ctx)
	inverse := phase.Inverse()
	logger := c.logger.With(
		zap.String("passId", passID),
		zap.String("phase", string(phase)),
		zap.String("groupId", groupID))

	var unresolved []string
	for _, o := range outcomes {
		if !o.Succeeded {
			continue
		}

		ok, err := c.apply(ctx, inverse, o.Host, groupID)
		if err == nil && ok {
			logger.Debug("rolled back host", zap.String("host", o.Host))
			c.metrics.ObserveCompensation(string(phase), metrics.CompensationUndone)
			continue
		}

		unresolved = append(unresolved, o.Host)
		c.metrics.ObserveCompensation(string(phase), metrics.CompensationUnresolved)
		c.diagnostics.Report(Diagnostic{
			Kind:    DiagnosticCompensationIncomplete,
			PassID:  passID,
			Phase:   phase,
			GroupID: groupID,
			Host:    o.Host,
			Err:     err,
		})
	}

	logger.Info("compensation finished",
		zap.Int("succeededHosts", len(outcomes.SucceededHosts())),
		zap.Strings("unresolved", unresolved))
	return unresolved
}
