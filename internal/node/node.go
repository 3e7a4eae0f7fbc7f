// Package node implements the per-host group service the coordinator drives.
//
// A node is a thin HTTP front over a storage.Store:
//
//	GET    /v1/group/{groupId}/   200 stored record | 404
//	POST   /v1/group/             201 | 400 bad request | 409 already exists
//	DELETE /v1/group/             200 | 400 bad request | 404
//	GET    /health                200
//	GET    /info                  instance id, group count, start time
//
// Create and delete carry the group in a JSON body: {"groupId": "..."}.
// Any extra fields posted on create are kept as part of the stored record.
package node

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/metrics"
	"github.com/dreamware/groupsync/internal/storage"
)

// maxRecordBytes caps a create/delete request body.
const maxRecordBytes = 1 << 20

// Options configures a Node.
type Options struct {
	Store   storage.Store
	Logger  *zap.Logger
	Metrics *metrics.NodeMetrics
}

// Node serves one host's groups.
type Node struct {
	// InstanceID identifies this process; it changes on every restart,
	// which tells an operator the node's memory was wiped.
	InstanceID string
	StartedAt  time.Time

	store   storage.Store
	logger  *zap.Logger
	metrics *metrics.NodeMetrics
}

// Info is the body of GET /info.
type Info struct {
	InstanceID string    `json:"instanceId"`
	Groups     int       `json:"groups"`
	Bytes      int       `json:"bytes"`
	StartedAt  time.Time `json:"startedAt"`
}

// GroupList is the body of GET /v1/group/.
type GroupList struct {
	GroupIDs []string `json:"groupIds"`
}

// New returns a Node over opts.Store, or over a fresh MemoryStore when
// none is given.
func New(opts Options) *Node {
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Node{
		InstanceID: uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		store:      store,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Router returns the node's HTTP routes.
// Paths are matched encoded and never cleaned, so a group id may contain
// escaped slashes or consist only of dots.
func (n *Node) Router() *mux.Router {
	r := mux.NewRouter().UseEncodedPath().SkipClean(true)

	r.HandleFunc("/v1/group/{groupId}/", n.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/group/{groupId}/", n.handleHead).Methods(http.MethodHead)
	r.HandleFunc("/v1/group/", n.handleList).Methods(http.MethodGet)
	r.HandleFunc("/v1/group/", n.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/v1/group/", n.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/info", n.handleInfo).Methods(http.MethodGet)

	return r
}

func (n *Node) handleGet(w http.ResponseWriter, r *http.Request) {
	groupID, err := url.PathUnescape(mux.Vars(r)["groupId"])
	if err != nil || groupID == "" {
		n.writeError(w, "get", http.StatusBadRequest, "bad request")
		return
	}

	record, err := n.store.Get(groupID)
	if errors.Is(err, storage.ErrGroupNotFound) {
		n.writeError(w, "get", http.StatusNotFound, "group not found")
		return
	}
	if err != nil {
		n.writeError(w, "get", http.StatusInternalServerError, err.Error())
		return
	}

	n.metrics.ObserveRequest("get", strconv.Itoa(http.StatusOK))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(record)
}

// handleHead answers an existence check without a body.
func (n *Node) handleHead(w http.ResponseWriter, r *http.Request) {
	groupID, err := url.PathUnescape(mux.Vars(r)["groupId"])
	if err != nil || groupID == "" {
		n.metrics.ObserveRequest("head", strconv.Itoa(http.StatusBadRequest))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	status := http.StatusNotFound
	if n.store.Exists(groupID) {
		status = http.StatusOK
	}
	n.metrics.ObserveRequest("head", strconv.Itoa(status))
	w.WriteHeader(status)
}

// handleList returns every stored group id in sorted order, for operators
// inspecting a host after an incomplete rollback.
func (n *Node) handleList(w http.ResponseWriter, _ *http.Request) {
	n.metrics.ObserveRequest("list", strconv.Itoa(http.StatusOK))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(GroupList{GroupIDs: n.store.List()})
}

func (n *Node) handleCreate(w http.ResponseWriter, r *http.Request) {
	groupID, raw, ok := n.readGroupRequest(w, r, "create")
	if !ok {
		return
	}

	err := n.store.Create(groupID, raw)
	if errors.Is(err, storage.ErrGroupExists) {
		n.writeError(w, "create", http.StatusConflict, "group already exists")
		return
	}
	if err != nil {
		n.writeError(w, "create", http.StatusInternalServerError, err.Error())
		return
	}

	n.logger.Info("group created", zap.String("groupId", groupID))
	n.metrics.ObserveRequest("create", strconv.Itoa(http.StatusCreated))
	n.metrics.SetGroups(n.store.Stats().Groups)
	w.WriteHeader(http.StatusCreated)
}

func (n *Node) handleDelete(w http.ResponseWriter, r *http.Request) {
	groupID, _, ok := n.readGroupRequest(w, r, "delete")
	if !ok {
		return
	}

	err := n.store.Delete(groupID)
	if errors.Is(err, storage.ErrGroupNotFound) {
		n.writeError(w, "delete", http.StatusNotFound, "group not found")
		return
	}
	if err != nil {
		n.writeError(w, "delete", http.StatusInternalServerError, err.Error())
		return
	}

	n.logger.Info("group deleted", zap.String("groupId", groupID))
	n.metrics.ObserveRequest("delete", strconv.Itoa(http.StatusOK))
	n.metrics.SetGroups(n.store.Stats().Groups)
	w.WriteHeader(http.StatusOK)
}

func (n *Node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	stats := n.store.Stats()
	_ = json.NewEncoder(w).Encode(Info{
		InstanceID: n.InstanceID,
		Groups:     stats.Groups,
		Bytes:      stats.Bytes,
		StartedAt:  n.StartedAt,
	})
}

// readGroupRequest decodes a {"groupId": ...} body and returns the id with
// the raw body. It writes a 400 and returns ok=false when the body is not a
// JSON object with a non-empty string groupId.
func (n *Node) readGroupRequest(w http.ResponseWriter, r *http.Request, op string) (string, []byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBytes))
	if err != nil {
		n.writeError(w, op, http.StatusBadRequest, "bad request")
		return "", nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		n.writeError(w, op, http.StatusBadRequest, "bad request")
		return "", nil, false
	}

	var groupID string
	if err := json.Unmarshal(fields["groupId"], &groupID); err != nil || groupID == "" {
		n.writeError(w, op, http.StatusBadRequest, "bad request")
		return "", nil, false
	}

	return groupID, raw, true
}

func (n *Node) writeError(w http.ResponseWriter, op string, status int, msg string) {
	n.metrics.ObserveRequest(op, strconv.Itoa(status))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(cluster.ErrorResponse{Error: msg})
}
