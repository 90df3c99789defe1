// Copyright 2025 Takhin Data, Inc.

// Package adminhttp exposes a read-only HTTP introspection API over
// the partition service: partition ownership, cluster membership,
// migration history, and the C4 safety verdict. It is the operational
// counterpart to pkg/rpc's node-to-node wire protocol, grounded on
// pkg/console/server.go's chi-based API server shape.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/takhin-data/partitiond/pkg/logger"
	"github.com/takhin-data/partitiond/pkg/membership"
	"github.com/takhin-data/partitiond/pkg/partition"
)

// Server is the admin HTTP API server.
type Server struct {
	router    *chi.Mux
	logger    *logger.Logger
	service   *partition.Service
	members   membership.Provider
	addr      string
	startTime time.Time
}

// NewServer builds the admin API server and wires its routes. It does
// not start listening until Start is called.
func NewServer(addr string, service *partition.Service, members membership.Provider) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.Default().WithComponent("admin-api"),
		service:   service,
		members:   members,
		addr:      addr,
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/health/ready", s.handleReadiness)
	s.router.Get("/api/health/live", s.handleLiveness)

	s.router.Route("/api/partitions", func(r chi.Router) {
		r.Get("/", s.handleListPartitions)
		r.Get("/{id}", s.handleGetPartition)
	})

	s.router.Route("/api/members", func(r chi.Router) {
		r.Get("/", s.handleListMembers)
		r.Get("/{address}/partitions", s.handleMemberPartitions)
	})

	s.router.Get("/api/cluster/state", s.handleClusterState)
	s.router.Get("/api/migrations", s.handleListMigrations)
}

// Start serves the admin API until the process exits or ListenAndServe
// errors. It has no graceful shutdown: cmd/partitiond does not stop it
// before the process exits.
func (s *Server) Start() error {
	s.logger.Info("starting admin API server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.router)
}

// --- health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	check := s.service.CheckState()
	status := HealthStatusHealthy
	switch check {
	case partition.SAFE:
		status = HealthStatusHealthy
	case partition.SAFE_WITH_REPLICAS_MISSING:
		status = HealthStatusDegraded
	default:
		status = HealthStatusDegraded
	}
	if !s.readinessOK() {
		status = HealthStatusUnhealthy
	}

	body := HealthCheck{
		Status:    status,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
		Partitions: PartitionHealth{
			Safe:             s.service.IsMemberStateSafe(),
			Check:            check.String(),
			Version:          s.service.Version(),
			PartitionCount:   s.service.PartitionCount(),
			UnownedCount:     s.service.UnownedPartitionCount(),
			MemberCount:      s.service.MemberCount(),
			OngoingMigration: s.service.HasOnGoingMigration(),
		},
		SystemInfo: systemInfo(),
	}

	statusCode := http.StatusOK
	if status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	s.respondJSON(w, statusCode, body)
}

func (s *Server) readinessOK() bool {
	return s.service != nil && s.members != nil
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := s.readinessOK()
	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.respondJSON(w, statusCode, map[string]bool{"ready": ready})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemoryMB:      float64(m.Alloc) / (1024 * 1024),
	}
}

// --- partitions ---

func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	table := s.service.GetPartitions()
	views := make([]PartitionView, 0, len(table))
	for _, p := range table {
		views = append(views, partitionView(p))
	}
	s.respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPartition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid partition id")
		return
	}

	p, err := s.service.GetPartition(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, partitionView(p))
}

func partitionView(p partition.Partition) PartitionView {
	view := PartitionView{ID: p.ID, Owner: p.Owner().Address}
	for i, slot := range p.Slots {
		view.Replicas = append(view.Replicas, ReplicaView{
			Index:   i,
			Address: slot.Address,
			Empty:   slot.IsEmpty(),
		})
	}
	return view
}

// --- members ---

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	if s.members == nil {
		s.respondJSON(w, http.StatusOK, []MemberView{})
		return
	}
	views := make([]MemberView, 0, len(s.members.Members()))
	for _, m := range s.members.Members() {
		views = append(views, MemberView{UUID: m.UUID.String(), Address: m.Address, Lite: m.Lite})
	}
	s.respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleMemberPartitions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	ids := s.service.GetMemberPartitions(address)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":    address,
		"partitions": ids,
	})
}

// --- cluster state & migrations ---

func (s *Server) handleClusterState(w http.ResponseWriter, r *http.Request) {
	var members []MemberView
	if s.members != nil {
		for _, m := range s.members.Members() {
			members = append(members, MemberView{UUID: m.UUID.String(), Address: m.Address, Lite: m.Lite})
		}
	}

	s.respondJSON(w, http.StatusOK, ClusterStateView{
		Version:        s.service.Version(),
		PartitionCount: s.service.PartitionCount(),
		Safe:           s.service.IsMemberStateSafe(),
		Check:          s.service.CheckState().String(),
		Members:        members,
		Migrations:     s.migrationsView(),
	})
}

func (s *Server) handleListMigrations(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.migrationsView())
}

func (s *Server) migrationsView() MigrationsView {
	snap := s.service.Snapshot()
	out := MigrationsView{Completed: make([]MigrationView, 0, len(snap.CompletedMigrations))}
	if snap.ActiveMigration != nil {
		v := migrationView(*snap.ActiveMigration)
		out.Active = &v
	}
	for _, m := range snap.CompletedMigrations {
		out.Completed = append(out.Completed, migrationView(m))
	}
	return out
}

func migrationView(m partition.MigrationInfo) MigrationView {
	return MigrationView{
		PartitionID:  m.PartitionID,
		ReplicaIndex: m.ReplicaIndex,
		Source:       m.Source.Address,
		Destination:  m.Destination.Address,
		Status:       m.Status.String(),
	}
}

// --- helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
