package dhtmetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/toxdht/dhtnode/pkg/dhtlog"
)

// Server exposes a Metrics instance over HTTP in both Prometheus text
// format and JSON, for an operator's monitoring stack to scrape.
type Server struct {
	address string
	metrics *Metrics
	logger  *dhtlog.Logger
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer constructs a metrics HTTP server bound to address (not yet
// listening — call Start).
func NewServer(address string, m *Metrics, logger *dhtlog.Logger) *Server {
	if logger == nil {
		logger = dhtlog.NewDefault()
	}
	mux := http.NewServeMux()
	s := &Server{
		address: address,
		metrics: m,
		logger:  logger.Component("dhtmetrics"),
	}
	mux.HandleFunc("/metrics", s.handlePrometheus)
	mux.HandleFunc("/metrics/json", s.handleJSON)
	mux.HandleFunc("/", s.handleIndex)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("dhtmetrics: listening on %s: %w", s.address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("metrics server listening", "address", listener.Addr().String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.metrics.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP dhtnode_packet_errors_total Packets that failed dispatch handling\n")
	fmt.Fprintf(w, "# TYPE dhtnode_packet_errors_total counter\n")
	fmt.Fprintf(w, "dhtnode_packet_errors_total %d\n", snap.PacketErrors)

	fmt.Fprintf(w, "# HELP dhtnode_close_list_size Current close-list occupancy\n")
	fmt.Fprintf(w, "# TYPE dhtnode_close_list_size gauge\n")
	fmt.Fprintf(w, "dhtnode_close_list_size %d\n", snap.CloseListSize)

	fmt.Fprintf(w, "# HELP dhtnode_friend_count Number of tracked friends\n")
	fmt.Fprintf(w, "# TYPE dhtnode_friend_count gauge\n")
	fmt.Fprintf(w, "dhtnode_friend_count %d\n", snap.FriendCount)

	fmt.Fprintf(w, "# HELP dhtnode_ping_ids_outstanding Outstanding request-queue entries\n")
	fmt.Fprintf(w, "# TYPE dhtnode_ping_ids_outstanding gauge\n")
	fmt.Fprintf(w, "dhtnode_ping_ids_outstanding %d\n", snap.PingIDsOutstanding)

	fmt.Fprintf(w, "# HELP dhtnode_ping_id_mismatches_total Responses rejected for ping-id mismatch\n")
	fmt.Fprintf(w, "# TYPE dhtnode_ping_id_mismatches_total counter\n")
	fmt.Fprintf(w, "dhtnode_ping_id_mismatches_total %d\n", snap.PingIDMismatches)

	fmt.Fprintf(w, "# HELP dhtnode_onion_requests_forwarded_total Onion request layers forwarded\n")
	fmt.Fprintf(w, "# TYPE dhtnode_onion_requests_forwarded_total counter\n")
	fmt.Fprintf(w, "dhtnode_onion_requests_forwarded_total %d\n", snap.OnionRequestsForwarded)

	fmt.Fprintf(w, "# HELP dhtnode_onion_responses_forwarded_total Onion response layers forwarded\n")
	fmt.Fprintf(w, "# TYPE dhtnode_onion_responses_forwarded_total counter\n")
	fmt.Fprintf(w, "dhtnode_onion_responses_forwarded_total %d\n", snap.OnionResponsesForwarded)

	fmt.Fprintf(w, "# HELP dhtnode_ticks_run_total Periodic loop ticks executed\n")
	fmt.Fprintf(w, "# TYPE dhtnode_ticks_run_total counter\n")
	fmt.Fprintf(w, "dhtnode_ticks_run_total %d\n", snap.TicksRun)

	for kind, count := range snap.PacketsByKind {
		fmt.Fprintf(w, "dhtnode_packets_total{kind=%q} %d\n", kind, count)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.metrics.Snapshot()); err != nil {
		s.logger.Error("encoding metrics snapshot", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>dhtnode metrics</title></head>
<body>
<h1>dhtnode metrics</h1>
<ul>
<li><a href="/metrics">/metrics</a> - Prometheus text format</li>
<li><a href="/metrics/json">/metrics/json</a> - JSON format</li>
</ul>
</body></html>`)
}
