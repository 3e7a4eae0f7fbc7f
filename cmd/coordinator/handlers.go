package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/coordinator"
)

// maxRequestBytes caps a POST /v1/groups body.
const maxRequestBytes = 1 << 20

// passResponse is the body returned for every create or delete request.
type passResponse struct {
	PassID     string                `json:"passId,omitempty"`
	Phase      cluster.Phase         `json:"phase"`
	GroupID    string                `json:"groupId"`
	Outcomes   cluster.OutcomeVector `json:"outcomes"`
	Unresolved []string              `json:"unresolved,omitempty"`
	AbortedAt  string                `json:"abortedAt,omitempty"`
	Unknown    []string              `json:"unknown,omitempty"`
	Error      string                `json:"error,omitempty"`
}

type server struct {
	coord    *coordinator.Coordinator
	monitor  *coordinator.HostMonitor
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func newServer(coord *coordinator.Coordinator, monitor *coordinator.HostMonitor, gatherer prometheus.Gatherer, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &server{
		coord:    coord,
		monitor:  monitor,
		gatherer: gatherer,
		logger:   logger,
	}
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter().UseEncodedPath().SkipClean(true)

	r.HandleFunc("/v1/groups", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/v1/groups/{groupId}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/v1/hosts", s.handleHosts).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req cluster.GroupRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, passResponse{
			Phase:    cluster.PhaseCreate,
			Outcomes: cluster.OutcomeVector{},
			Error:    "invalid request body",
		})
		return
	}

	s.handlePass(w, r, cluster.PhaseCreate, req.GroupID)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	groupID, err := url.PathUnescape(mux.Vars(r)["groupId"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, passResponse{
			Phase:    cluster.PhaseDelete,
			Outcomes: cluster.OutcomeVector{},
			Error:    "invalid group id",
		})
		return
	}

	s.handlePass(w, r, cluster.PhaseDelete, groupID)
}

func (s *server) handlePass(w http.ResponseWriter, r *http.Request, phase cluster.Phase, groupID string) {
	resp, err := runPass(r.Context(), s.coord, phase, groupID)
	status := statusOf(err)
	if err != nil {
		s.logger.Debug("pass request failed",
			zap.String("passId", resp.PassID),
			zap.String("phase", string(phase)),
			zap.String("groupId", groupID),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func (s *server) handleHosts(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		hosts := s.coord.Hosts()
		health := make([]coordinator.HostHealth, 0, len(hosts))
		for _, host := range hosts {
			health = append(health, coordinator.HostHealth{Host: host, Status: coordinator.HostStatusUnknown})
		}
		writeJSON(w, http.StatusOK, health)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

// runPass runs one create or delete pass under a fresh pass id and
// describes its result.
func runPass(ctx context.Context, coord *coordinator.Coordinator, phase cluster.Phase, groupID string) (passResponse, error) {
	passID := uuid.NewString()
	ctx = coordinator.WithPassID(ctx, passID)

	var outcomes cluster.OutcomeVector
	var err error
	if phase == cluster.PhaseCreate {
		outcomes, err = coord.CreateGroup(ctx, groupID)
	} else {
		outcomes, err = coord.DeleteGroup(ctx, groupID)
	}

	resp := passResponse{
		PassID:   passID,
		Phase:    phase,
		GroupID:  groupID,
		Outcomes: outcomes,
	}
	var writeFailed *coordinator.ClusterWriteFailedError
	var aborted *coordinator.PassAbortedError
	switch {
	case errors.As(err, &writeFailed):
		resp.Outcomes = writeFailed.Outcomes
		resp.Unresolved = writeFailed.Unresolved
	case errors.As(err, &aborted):
		resp.Outcomes = aborted.Completed
		resp.AbortedAt = aborted.Host
		resp.Unknown = aborted.Unknown
	}
	if err != nil {
		resp.Error = err.Error()
	}
	if resp.Outcomes == nil {
		resp.Outcomes = cluster.OutcomeVector{}
	}

	return resp, err
}

// statusOf maps a pass error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, coordinator.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrClusterWriteFailed):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrPassAborted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
