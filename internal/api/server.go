package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"spintraffic/internal/config"
	"spintraffic/internal/metrics"
	"spintraffic/internal/model"
	"spintraffic/internal/query"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name of the aggregator.
const ServiceName = "spintraffic.Aggregator"

// WindowSource provides the last reported window.
type WindowSource interface {
	Latest() *model.Window
}

// TableSource provides a copy of the flows of the window still accumulating.
type TableSource interface {
	Snapshot() []*model.FlowRecord
}

// Server serves the HTTP API and the gRPC health service.
type Server struct {
	windows WindowSource
	table   TableSource
	history query.Querier // nil when no ClickHouse is configured
	metrics *metrics.Metrics
	health  *health.Server

	httpServer *http.Server
	grpcServer *grpc.Server
	grpcAddr   string
}

// NewServer creates the API server. history may be nil. The health status
// starts as not serving until SetBusStatus reports a connected bus.
func NewServer(cfg config.APIConfig, windows WindowSource, table TableSource, history query.Querier, m *metrics.Metrics) *Server {
	s := &Server{
		windows:  windows,
		table:    table,
		history:  history,
		metrics:  m,
		health:   health.NewServer(),
		grpcAddr: cfg.GRPCListenAddr,
	}
	s.SetBusStatus(errors.New("not connected yet"))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// Router returns the HTTP routes of the API.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/windows/latest", s.latestWindowHandler).Methods("GET")
	r.HandleFunc("/api/v1/windows/latest/simplified", s.latestSimplifiedHandler).Methods("GET")
	r.HandleFunc("/api/v1/table", s.tableHandler).Methods("GET")
	r.HandleFunc("/api/v1/history/talkers", s.topTalkersHandler).Methods("GET")
	r.HandleFunc("/api/v1/history/windows/{id}", s.historyWindowHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	return r
}

// SetBusStatus updates the health status from the bus connection state.
func (s *Server) SetBusStatus(err error) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serving reports whether the health status is currently serving.
func (s *Server) Serving() bool {
	resp, err := s.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	return err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
}

// Start begins serving HTTP and gRPC in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.grpcAddr, err)
	}

	go func() {
		log.Printf("gRPC health server starting on %s", s.grpcAddr)
		if err := s.grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()

	go func() {
		log.Printf("API server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Could not listen on %s: %v", s.httpServer.Addr, err)
		}
	}()
	return nil
}

// Shutdown stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	log.Println("API server exited.")
	return nil
}
