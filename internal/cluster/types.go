package cluster

import (
	"fmt"
	"net/url"
	"strings"
)

// GroupRecord is the document a node stores for a group.
// The coordinator only ever reads or writes the id; nodes keep whatever
// payload was posted at creation.
type GroupRecord struct {
	GroupID string `json:"groupId"`
}

// ErrorResponse is the body nodes and the coordinator return with a
// non-success status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Phase names the logical operation a pass applied.
type Phase string

const (
	// PhaseCreate is a pass that creates the group on every host
	PhaseCreate Phase = "create"
	// PhaseDelete is a pass that deletes the group from every host
	PhaseDelete Phase = "delete"
)

// Inverse returns the phase that undoes p.
func (p Phase) Inverse() Phase {
	if p == PhaseCreate {
		return PhaseDelete
	}
	return PhaseCreate
}

// Outcome records whether one host accepted the operation of a pass.
type Outcome struct {
	Host      string `json:"host"`
	Succeeded bool   `json:"succeeded"`
}

// OutcomeVector is the ordered per-host record of one pass.
// Entries follow the coordinator's host list order.
type OutcomeVector []Outcome

// AllSucceeded reports whether every host in the vector succeeded.
// An empty vector counts as success.
func (v OutcomeVector) AllSucceeded() bool {
	for _, o := range v {
		if !o.Succeeded {
			return false
		}
	}
	return true
}

// SucceededHosts returns the hosts recorded as succeeded, in vector order.
func (v OutcomeVector) SucceededHosts() []string {
	hosts := make([]string, 0, len(v))
	for _, o := range v {
		if o.Succeeded {
			hosts = append(hosts, o.Host)
		}
	}
	return hosts
}

// BaseURL turns a host address into an http base URL without a trailing slash.
// Both "host:port" and full "http(s)://host:port" forms are accepted.
func BaseURL(host string) string {
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return strings.TrimRight(base, "/")
}

// GroupURL is the existence-check endpoint for groupID on host.
func GroupURL(host, groupID string) string {
	return fmt.Sprintf("%s/v1/group/%s/", BaseURL(host), escapeGroupID(groupID))
}

// escapeGroupID path-escapes groupID as a single segment. Dot-only ids are
// percent-encoded too, since "." and ".." would otherwise be read as
// relative path segments.
func escapeGroupID(groupID string) string {
	if groupID != "" && strings.Trim(groupID, ".") == "" {
		return strings.Repeat("%2E", len(groupID))
	}
	return url.PathEscape(groupID)
}

// GroupsURL is the create/delete endpoint on host.
func GroupsURL(host string) string {
	return BaseURL(host) + "/v1/group/"
}

// HealthURL is the liveness endpoint on host.
func HealthURL(host string) string {
	return BaseURL(host) + "/health"
}
