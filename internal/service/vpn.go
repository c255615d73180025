package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/authz"
	"github.com/raakeshmj/vpnshield/internal/db"
	"github.com/raakeshmj/vpnshield/internal/repository"
	"github.com/raakeshmj/vpnshield/internal/vpn"
)

// VPNService applies per-server plan requirements and usage accounting on
// top of the tunnel collaborator.
type VPNService struct {
	vpn   vpn.Service
	users repository.UserRepository
	log   zerolog.Logger
}

func NewVPNService(v vpn.Service, u repository.UserRepository, log zerolog.Logger) *VPNService {
	return &VPNService{vpn: v, users: u, log: log}
}

func (s *VPNService) Servers() []vpn.Server {
	return s.vpn.Servers()
}

func (s *VPNService) Connect(ctx context.Context, email string, plan authz.Plan, serverID string) (*vpn.Connection, error) {
	srv, ok := s.vpn.Server(serverID)
	if !ok {
		return nil, apierr.NotFound("Server not found", vpn.ErrUnknownServer)
	}
	if err := authz.RequirePlan(plan, srv.MinPlan); err != nil {
		var up *authz.UpgradeRequiredError
		if errors.As(err, &up) {
			return nil, apierr.UpgradeRequired(string(up.Required), string(up.Current), err)
		}
		return nil, apierr.Forbidden(err)
	}

	conn, err := s.vpn.Connect(ctx, email, serverID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if err := s.users.AddUsage(ctx, email, db.Usage{Connections: 1}); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("record connection usage")
	}
	return conn, nil
}

func (s *VPNService) Disconnect(ctx context.Context, email string) (*vpn.Connection, error) {
	conn, err := s.vpn.Disconnect(ctx, email)
	if err != nil {
		if errors.Is(err, vpn.ErrNotConnected) {
			return nil, apierr.Validation("Not connected", err)
		}
		return nil, apierr.Internal(err)
	}
	delta := db.Usage{BytesTransferred: conn.BytesIn + conn.BytesOut}
	if err := s.users.AddUsage(ctx, email, delta); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("record transfer usage")
	}
	return conn, nil
}

func (s *VPNService) Status(ctx context.Context, email string) (*vpn.Connection, bool) {
	return s.vpn.Status(ctx, email)
}
