// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/engine"
	"github.com/tsdasari9/firewall/internal/metrics"
)

// StatusResponse is returned by /api/status.
type StatusResponse struct {
	InstanceID string                 `json:"instance_id"`
	StartedAt  time.Time              `json:"started_at"`
	Uptime     string                 `json:"uptime"`
	Stats      any                    `json:"stats,omitempty"`
	NAT        NATSummary             `json:"nat"`
	ACLRules   int                    `json:"acl_rules"`
	Tracked    map[string]int         `json:"tracked_keys"`
	Sources    []metrics.CounterStats `json:"source_counters,omitempty"`
	Listeners  int                    `json:"event_listeners"`
}

// NATSummary describes the translation table.
type NATSummary struct {
	PublicAddress string `json:"public_address"`
	Mappings      int    `json:"mappings"`
	Remaining     int    `json:"ports_remaining"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.policies
	resp := StatusResponse{
		InstanceID: s.instanceID,
		StartedAt:  s.startTime.UTC(),
		Uptime:     clock.Since(s.startTime).Round(time.Second).String(),
		NAT: NATSummary{
			PublicAddress: p.NAT.PublicAddress().String(),
			Mappings:      p.NAT.Len(),
			Remaining:     p.NAT.Remaining(),
		},
		ACLRules: p.ACL.Len(),
		Tracked:  make(map[string]int),
	}
	if s.stats != nil {
		resp.Stats = s.stats()
	}
	if p.Intrusion != nil {
		resp.Tracked["intrusion"] = p.Intrusion.Len()
	}
	if p.RateLimit != nil {
		resp.Tracked["rate_limit"] = p.RateLimit.Len()
	}
	if p.Shaper != nil {
		resp.Tracked["traffic_shaping"] = p.Shaper.Len()
	}
	if s.collector != nil {
		resp.Sources = s.collector.Stats()
	}
	if s.hub != nil {
		resp.Listeners = s.hub.Len()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNAT(w http.ResponseWriter, r *http.Request) {
	mappings := s.policies.NAT.Mappings()
	respondWithJSON(w, http.StatusOK, map[string]any{
		"public_address": s.policies.NAT.PublicAddress().String(),
		"count":          len(mappings),
		"mappings":       mappings,
	})
}

// handleNATLookup resolves a public endpoint back to the private endpoint
// that owns it.
func (s *Server) handleNATLookup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, err := netip.ParseAddr(vars["address"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid address")
		return
	}
	port, err := strconv.ParseUint(vars["port"], 10, 16)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid port")
		return
	}

	public := netip.AddrPortFrom(addr.Unmap(), uint16(port))
	private, ok := s.policies.NAT.ReverseTranslate(public)
	if !ok {
		respondWithError(w, http.StatusNotFound, "no mapping for "+public.String())
		return
	}
	respondWithJSON(w, http.StatusOK, engine.Translation{Private: private, Public: public})
}

func (s *Server) handleACL(w http.ResponseWriter, r *http.Request) {
	rules := s.policies.ACL.Rules()
	respondWithJSON(w, http.StatusOK, map[string]any{
		"count": len(rules),
		"rules": rules,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
