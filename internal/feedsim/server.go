package feedsim

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/otxsync/internal/domain/model"
)

// Server serves a fixed pulse set with the OTX pagination protocol:
// GET /pulses/subscribed?limit=N&page=M returns {results, next} where next
// is a fully-formed URL or null on the last page. GET /pulses/{id} returns
// one pulse.
type Server struct {
	pulses []model.Pulse
	byID   map[string]model.Pulse

	// BaseURL is prepended to next links. Set it to the listener address
	// before serving.
	BaseURL string
}

// NewServer creates a simulator over the given pulses.
func NewServer(pulses []model.Pulse) *Server {
	byID := make(map[string]model.Pulse, len(pulses))
	for _, p := range pulses {
		byID[p.ID] = p
	}
	return &Server{pulses: pulses, byID: byID}
}

// Handler returns the HTTP handler implementing the feed surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/pulses/subscribed", s.handleSubscribed)
	mux.HandleFunc("/pulses/", s.handlePulse)
	return mux
}

func (s *Server) handleSubscribed(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		// Mimic the real feed's tiny default page when no limit is sent.
		limit = 5
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}

	start := (page - 1) * limit
	if start > len(s.pulses) {
		start = len(s.pulses)
	}
	end := start + limit
	if end > len(s.pulses) {
		end = len(s.pulses)
	}

	resp := struct {
		Results []model.Pulse `json:"results"`
		Next    *string       `json:"next"`
	}{Results: s.pulses[start:end]}

	if end < len(s.pulses) {
		next := fmt.Sprintf("%s/pulses/subscribed?limit=%d&page=%d", s.BaseURL, limit, page+1)
		resp.Next = &next
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePulse(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/pulses/"):]
	pulse, ok := s.byID[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pulse)
}
