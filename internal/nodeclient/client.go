package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/cluster"
)

// DefaultTimeout bounds a single node call when Options.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// Op names a logical node operation.
type Op string

const (
	OpExists Op = "exists"
	OpCreate Op = "create"
	OpDelete Op = "delete"
)

// ErrTransport matches every *TransportError.
var ErrTransport = errors.New("node transport failure")

// ErrUnexpectedStatus is wrapped by a TransportError when a node answers an
// existence check with something other than found or not found.
var ErrUnexpectedStatus = errors.New("unexpected status")

// TransportError reports that a node could not be asked, or answered with
// something that can't be classified. The host's state is unknown.
type TransportError struct {
	Host string
	Op   Op
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Host, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Client is the coordinator's view of a node.
//
// Application-level outcomes are reported as booleans. A non-nil error is
// always a *TransportError and means the call's effect on the host is unknown.
type Client interface {
	// Exists reports whether the group is stored on host.
	Exists(ctx context.Context, host, groupID string) (bool, error)
	// TryCreate creates the group on host; false means the node refused.
	TryCreate(ctx context.Context, host, groupID string) (bool, error)
	// TryDelete deletes the group from host; false means the node refused.
	TryDelete(ctx context.Context, host, groupID string) (bool, error)
}

// Options configures an HTTPClient.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// HTTPClient talks to the node service over HTTP/JSON.
// It makes exactly one request per call and never retries.
type HTTPClient struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns an HTTPClient, filling unset options with
// http.Client{}, DefaultTimeout and a no-op logger.
func NewHTTPClient(opts Options) *HTTPClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPClient{
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

// Exists asks host for the group. 200 with a group record is true, 404 is
// false, and anything else is a *TransportError.
func (c *HTTPClient) Exists(ctx context.Context, host, groupID string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, cluster.GroupURL(host, groupID), nil)
	if err != nil {
		return false, c.transportError(host, OpExists, err)
	}

	switch status {
	case http.StatusOK:
		var record cluster.GroupRecord
		if err := json.Unmarshal(body, &record); err != nil {
			return false, c.transportError(host, OpExists, errors.Wrap(err, "malformed group record"))
		}
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, c.transportError(host, OpExists, errors.Wrapf(ErrUnexpectedStatus, "http %d", status))
	}
}

// TryCreate posts the group to host. Any 2xx is true, any other status false.
func (c *HTTPClient) TryCreate(ctx context.Context, host, groupID string) (bool, error) {
	status, _, err := c.do(ctx, http.MethodPost, cluster.GroupsURL(host), cluster.GroupRecord{GroupID: groupID})
	if err != nil {
		return false, c.transportError(host, OpCreate, err)
	}
	return c.accepted(host, OpCreate, status), nil
}

// TryDelete deletes the group from host. Any 2xx is true, any other status false.
func (c *HTTPClient) TryDelete(ctx context.Context, host, groupID string) (bool, error) {
	status, _, err := c.do(ctx, http.MethodDelete, cluster.GroupsURL(host), cluster.GroupRecord{GroupID: groupID})
	if err != nil {
		return false, c.transportError(host, OpDelete, err)
	}
	return c.accepted(host, OpDelete, status), nil
}

func (c *HTTPClient) accepted(host string, op Op, status int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	c.logger.Debug("node refused operation",
		zap.String("host", host),
		zap.String("op", string(op)),
		zap.Int("status", status))
	return false
}

func (c *HTTPClient) transportError(host string, op Op, err error) error {
	c.logger.Debug("node call failed",
		zap.String("host", host),
		zap.String("op", string(op)),
		zap.Error(err))
	return &TransportError{Host: host, Op: op, Err: err}
}

// do performs one request and returns the status and the full response body.
// A body of nil sends no payload; anything else is sent as JSON.
func (c *HTTPClient) do(ctx context.Context, method, url string, body any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, errors.Wrap(err, "failed to encode request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "http %s %s", method, url)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to read response")
	}
	return resp.StatusCode, respBody, nil
}
