package server

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/audit"
	"github.com/raakeshmj/vpnshield/internal/config"
	"github.com/raakeshmj/vpnshield/internal/middleware"
)

// adminAudit records a privileged change in addition to the per-request entry.
func (s *Server) adminAudit(r *http.Request, action, resource string, meta map[string]interface{}) {
	s.auditLogger.Log(audit.LogEntry{
		Timestamp: time.Now(),
		RequestID: middleware.RequestID(r.Context()),
		ClientID:  middleware.ClientID(r.Context()),
		ActorID:   session(r).Email,
		Action:    action,
		Resource:  resource,
		Status:    http.StatusOK,
		Metadata:  meta,
	})
}

func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.authService.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	email := mux.Vars(r)["email"]
	if err := s.authService.SetRole(r.Context(), email, req.Role); err != nil {
		s.fail(w, r, err)
		return
	}
	s.adminAudit(r, "user_role", "user:"+email, map[string]interface{}{"role": req.Role})
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"email": email, "role": req.Role})
}

func (s *Server) SetUserPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	email := mux.Vars(r)["email"]
	if err := s.authService.SetPlan(r.Context(), email, req.Plan); err != nil {
		s.fail(w, r, err)
		return
	}
	s.adminAudit(r, "user_plan", "user:"+email, map[string]interface{}{"plan": req.Plan})
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"email": email, "plan": req.Plan})
}

func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]
	if err := s.authService.DeleteUser(r.Context(), email); err != nil {
		s.fail(w, r, err)
		return
	}
	s.adminAudit(r, "user_delete", "user:"+email, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	ips, err := s.blocked.List(r.Context())
	if err != nil {
		s.fail(w, r, apierr.Internal(err))
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"ips": ips})
}

type ipRequest struct {
	IP string `json:"ip"`
}

func (s *Server) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ip := net.ParseIP(req.IP)
	if ip == nil {
		s.fail(w, r, apierr.Validation("Invalid IP address", nil))
		return
	}
	if err := s.blocked.Add(r.Context(), ip.String()); err != nil {
		s.fail(w, r, apierr.Internal(err))
		return
	}
	s.adminAudit(r, "ip_block", "ip:"+ip.String(), nil)
	apierr.WriteJSON(w, http.StatusCreated, map[string]string{"ip": ip.String()})
}

func (s *Server) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := net.ParseIP(mux.Vars(r)["ip"])
	if ip == nil {
		s.fail(w, r, apierr.Validation("Invalid IP address", nil))
		return
	}
	if err := s.blocked.Remove(r.Context(), ip.String()); err != nil {
		s.fail(w, r, apierr.Internal(err))
		return
	}
	s.adminAudit(r, "ip_unblock", "ip:"+ip.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	apierr.WriteJSON(w, http.StatusOK, s.metrics.GetStats())
}

type rateLimitRequest struct {
	Max    int    `json:"max"`
	Window string `json:"window"`
}

// UpdateRateLimit changes the global limit without a restart.
func (s *Server) UpdateRateLimit(w http.ResponseWriter, r *http.Request) {
	var req rateLimitRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	window, err := time.ParseDuration(req.Window)
	if err != nil {
		s.fail(w, r, apierr.Validation("Invalid window", err))
		return
	}
	p := config.PolicyConfig{RateLimitMax: req.Max, RateLimitWindow: window}
	if err := s.configManager.UpdatePolicy(p); err != nil {
		s.fail(w, r, apierr.Validation(err.Error(), err))
		return
	}
	s.adminAudit(r, "policy_reload", "config:rate-limit", map[string]interface{}{
		"max":    req.Max,
		"window": window.String(),
	})
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"max": p.RateLimitMax, "window": p.RateLimitWindow.String()})
}
