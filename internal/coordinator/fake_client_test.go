package coordinator

import (
	"context"
	"sync"

	"github.com/dreamware/groupsync/internal/nodeclient"
)

type call struct {
	Op      nodeclient.Op
	Host    string
	GroupID string
}

type response struct {
	ok  bool
	err error
}

// fakeClient is a scripted nodeclient.Client. Each (op, host) pair has a
// queue of responses; when the queue is empty the fake answers from its
// per-host group sets, like a healthy node would.
type fakeClient struct {
	mu     sync.Mutex
	calls  []call
	script map[nodeclient.Op]map[string][]response
	groups map[string]map[string]bool
	// hook runs after a call is recorded and before it is answered,
	// outside the lock.
	hook func(ctx context.Context, c call)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		script: make(map[nodeclient.Op]map[string][]response),
		groups: make(map[string]map[string]bool),
	}
}

// on queues a response for the next (op, host) call.
func (f *fakeClient) on(op nodeclient.Op, host string, ok bool, err error) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.script[op] == nil {
		f.script[op] = make(map[string][]response)
	}
	f.script[op][host] = append(f.script[op][host], response{ok: ok, err: err})
	return f
}

// seed stores groupID on host.
func (f *fakeClient) seed(host, groupID string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groups[host] == nil {
		f.groups[host] = make(map[string]bool)
	}
	f.groups[host][groupID] = true
	return f
}

func (f *fakeClient) has(host, groupID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups[host][groupID]
}

func (f *fakeClient) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// callsFor filters recorded calls by op.
func (f *fakeClient) callsFor(op nodeclient.Op) []call {
	var out []call
	for _, c := range f.recorded() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeClient) answer(ctx context.Context, op nodeclient.Op, host, groupID string) (bool, error) {
	c := call{Op: op, Host: host, GroupID: groupID}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, &nodeclient.TransportError{Host: host, Op: op, Err: err}
	}
	if f.hook != nil {
		f.hook(ctx, c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if queue := f.script[op][host]; len(queue) > 0 {
		r := queue[0]
		f.script[op][host] = queue[1:]
		if r.err != nil {
			return false, &nodeclient.TransportError{Host: host, Op: op, Err: r.err}
		}
		if r.ok {
			f.applyLocked(op, host, groupID)
		}
		return r.ok, nil
	}

	present := f.groups[host][groupID]
	switch op {
	case nodeclient.OpExists:
		return present, nil
	case nodeclient.OpCreate:
		if present {
			return false, nil
		}
	case nodeclient.OpDelete:
		if !present {
			return false, nil
		}
	}
	f.applyLocked(op, host, groupID)
	return true, nil
}

func (f *fakeClient) applyLocked(op nodeclient.Op, host, groupID string) {
	switch op {
	case nodeclient.OpCreate:
		if f.groups[host] == nil {
			f.groups[host] = make(map[string]bool)
		}
		f.groups[host][groupID] = true
	case nodeclient.OpDelete:
		delete(f.groups[host], groupID)
	}
}

func (f *fakeClient) Exists(ctx context.Context, host, groupID string) (bool, error) {
	return f.answer(ctx, nodeclient.OpExists, host, groupID)
}

func (f *fakeClient) TryCreate(ctx context.Context, host, groupID string) (bool, error) {
	return f.answer(ctx, nodeclient.OpCreate, host, groupID)
}

func (f *fakeClient) TryDelete(ctx context.Context, host, groupID string) (bool, error) {
	return f.answer(ctx, nodeclient.OpDelete, host, groupID)
}
