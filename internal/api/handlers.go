package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"spintraffic/internal/model"
	"spintraffic/internal/report"

	"github.com/gorilla/mux"
)

const (
	defaultHistorySince = 24 * time.Hour
	defaultTalkersLimit = 10
	maxTalkersLimit     = 1000
)

type endpointResponse struct {
	MAC     string   `json:"mac"`
	IPs     []string `json:"ips"`
	Domains []string `json:"domains"`
}

type flowResponse struct {
	Timestamp int64            `json:"timestamp"`
	From      endpointResponse `json:"from"`
	To        endpointResponse `json:"to"`
	FromPort  int              `json:"from_port"`
	ToPort    int              `json:"to_port"`
	CountIn   int64            `json:"count_in"`
	SizeIn    int64            `json:"size_in"`
	CountOut  int64            `json:"count_out"`
	SizeOut   int64            `json:"size_out"`
}

type windowResponse struct {
	ID         string         `json:"id"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	TotalSize  int64          `json:"total_size"`
	TotalCount int64          `json:"total_count"`
	Flows      []flowResponse `json:"flows"`
}

type tableResponse struct {
	Flows []flowResponse `json:"flows"`
}

func toEndpointResponse(e model.Endpoint) endpointResponse {
	r := endpointResponse{MAC: e.MAC, IPs: e.IPs, Domains: e.Domains}
	if r.IPs == nil {
		r.IPs = []string{}
	}
	if r.Domains == nil {
		r.Domains = []string{}
	}
	return r
}

func toFlowResponses(flows []*model.FlowRecord) []flowResponse {
	resp := make([]flowResponse, 0, len(flows))
	for _, f := range flows {
		resp = append(resp, flowResponse{
			Timestamp: f.Timestamp,
			From:      toEndpointResponse(f.From),
			To:        toEndpointResponse(f.To),
			FromPort:  f.FromPort,
			ToPort:    f.ToPort,
			CountIn:   f.CountIn,
			SizeIn:    f.SizeIn,
			CountOut:  f.CountOut,
			SizeOut:   f.SizeOut,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}

// latestWindowHandler returns the last reported window as JSON.
func (s *Server) latestWindowHandler(w http.ResponseWriter, r *http.Request) {
	window := s.windows.Latest()
	if window == nil {
		http.Error(w, "no window reported yet", http.StatusNotFound)
		return
	}
	writeJSON(w, windowResponse{
		ID:         window.ID,
		Start:      window.Start,
		End:        window.End,
		TotalSize:  window.TotalSize(),
		TotalCount: window.TotalCount(),
		Flows:      toFlowResponses(window.Flows),
	})
}

// latestSimplifiedHandler returns the last reported window in the simplified text format.
func (s *Server) latestSimplifiedHandler(w http.ResponseWriter, r *http.Request) {
	window := s.windows.Latest()
	if window == nil {
		http.Error(w, "no window reported yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, report.Header(window))
	for _, f := range window.Flows {
		fmt.Fprintln(w, report.SimplifiedLine(f))
	}
}

// tableHandler returns the flows of the window still accumulating.
func (s *Server) tableHandler(w http.ResponseWriter, r *http.Request) {
	flows := s.table.Snapshot()
	report.Rank(flows)
	writeJSON(w, tableResponse{Flows: toFlowResponses(flows)})
}

// topTalkersHandler returns the devices with the most traffic over a past period.
// Query parameters: since (duration, default 24h) and limit (default 10).
func (s *Server) topTalkersHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history is not configured", http.StatusServiceUnavailable)
		return
	}

	since := defaultHistorySince
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, fmt.Sprintf("invalid since: %q", v), http.StatusBadRequest)
			return
		}
		since = d
	}
	limit := defaultTalkersLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxTalkersLimit {
			http.Error(w, fmt.Sprintf("invalid limit: %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	talkers, err := s.history.TopTalkers(r.Context(), time.Now().Add(-since), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query talkers: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, talkers)
}

// historyWindowHandler returns the stored flows of a past window.
func (s *Server) historyWindowHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history is not configured", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["id"]
	flows, err := s.history.WindowFlows(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query window: %v", err), http.StatusInternalServerError)
		return
	}
	if len(flows) == 0 {
		http.Error(w, fmt.Sprintf("window %s not found", id), http.StatusNotFound)
		return
	}
	writeJSON(w, tableResponse{Flows: toFlowResponses(flows)})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if !s.Serving() {
		http.Error(w, "bus disconnected", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}
