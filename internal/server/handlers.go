package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/auth"
	"github.com/raakeshmj/vpnshield/internal/authz"
	"github.com/raakeshmj/vpnshield/internal/middleware"
	"github.com/raakeshmj/vpnshield/internal/service"
	"github.com/raakeshmj/vpnshield/internal/vpn"
)

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Validation("Malformed JSON body", err)
	}
	return nil
}

// fail writes err and logs it when it is a server-side failure. Client errors
// are already visible in the audit log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.From(err)
	if e.Status() >= 500 {
		s.log.Error().
			Str("request_id", middleware.RequestID(r.Context())).
			Str("path", r.URL.Path).
			Err(err).
			Msg("request failed")
	}
	apierr.Write(w, e)
}

// session returns the verified claims; routes reaching it always carry them.
func session(r *http.Request) *auth.TokenClaims {
	c, _ := middleware.Claims(r.Context())
	if c == nil {
		return &auth.TokenClaims{}
	}
	return c
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Warn().Str("dependency", name).Err(err).Msg("readiness check failed")
			apierr.Write(w, apierr.Unavailable(name+" unavailable", err))
			return
		}
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, sess)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.authService.Login(r.Context(), middleware.ClientID(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) oauthLogin(w http.ResponseWriter, r *http.Request) {
	var req service.OAuthRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.authService.OAuthLogin(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	c := session(r)
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":     true,
		"email":     c.Email,
		"plan":      c.Plan,
		"role":      c.Role,
		"expiresAt": c.ExpiresAt,
	})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	u, err := s.authService.Profile(r.Context(), session(r).Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, u)
}

type planRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) changePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.authService.ChangePlan(r.Context(), session(r).Email, req.Plan)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	u, err := s.authService.Profile(r.Context(), session(r).Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	_, connected := s.vpnService.Status(r.Context(), u.Email)
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"plan":             u.Plan,
		"connections":      u.Usage.Connections,
		"bytesTransferred": u.Usage.BytesTransferred,
		"connected":        connected,
	})
}

type serverView struct {
	vpn.Server
	Available bool `json:"available"`
}

func (s *Server) vpnServers(w http.ResponseWriter, r *http.Request) {
	plan := authz.Plan(session(r).Plan)
	servers := s.vpnService.Servers()
	out := make([]serverView, 0, len(servers))
	for _, srv := range servers {
		out = append(out, serverView{Server: srv, Available: plan.AtLeast(srv.MinPlan)})
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"servers": out})
}

func (s *Server) vpnStatus(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.vpnService.Status(r.Context(), session(r).Email)
	body := map[string]any{"connected": ok}
	if ok {
		body["connection"] = conn
	}
	apierr.WriteJSON(w, http.StatusOK, body)
}

type connectRequest struct {
	ServerID string `json:"serverId"`
}

func (s *Server) vpnConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ServerID == "" {
		s.fail(w, r, apierr.Validation("serverId is required", nil))
		return
	}
	c := session(r)
	conn, err := s.vpnService.Connect(r.Context(), c.Email, authz.Plan(c.Plan), req.ServerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, conn)
}

func (s *Server) vpnDisconnect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.vpnService.Disconnect(r.Context(), session(r).Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"disconnected": true,
		"bytesIn":      conn.BytesIn,
		"bytesOut":     conn.BytesOut,
	})
}
