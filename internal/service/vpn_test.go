package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/authz"
	"github.com/raakeshmj/vpnshield/internal/db"
	"github.com/raakeshmj/vpnshield/internal/vpn"
)

func newVPNService(t *testing.T) (*VPNService, *MockUserRepo) {
	t.Helper()
	mock, err := vpn.NewMockService(vpn.DefaultServers)
	require.NoError(t, err)
	repo := NewMockUserRepo()
	require.NoError(t, repo.Put(context.Background(), &db.User{Email: "a@b.com", Plan: "free", Role: "user"}))
	return NewVPNService(mock, repo, zerolog.Nop()), repo
}

func TestVPNService_ConnectCountsUsage(t *testing.T) {
	ctx := context.Background()
	svc, repo := newVPNService(t)

	conn, err := svc.Connect(ctx, "a@b.com", authz.PlanFree, "us-east")
	require.NoError(t, err)
	assert.Equal(t, "us-east", conn.ServerID)
	assert.Equal(t, int64(1), repo.users["a@b.com"].Usage.Connections)

	st, ok := svc.Status(ctx, "a@b.com")
	require.True(t, ok)
	assert.Equal(t, conn.ClientIP, st.ClientIP)

	_, err = svc.Disconnect(ctx, "a@b.com")
	require.NoError(t, err)

	_, err = svc.Disconnect(ctx, "a@b.com")
	assert.Equal(t, http.StatusBadRequest, apierr.From(err).Status())
}

func TestVPNService_PlanGatedServer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newVPNService(t)

	_, err := svc.Connect(ctx, "a@b.com", authz.PlanFree, "streaming")
	require.Error(t, err)
	e := apierr.From(err)
	assert.Equal(t, http.StatusForbidden, e.Status())
	assert.Equal(t, "ultimate", e.RequiredPlan)
	assert.Equal(t, "free", e.CurrentPlan)

	_, err = svc.Connect(ctx, "a@b.com", authz.PlanEnterprise, "streaming")
	assert.NoError(t, err)
}

func TestVPNService_UnknownServer(t *testing.T) {
	svc, _ := newVPNService(t)
	_, err := svc.Connect(context.Background(), "a@b.com", authz.PlanEnterprise, "mars")
	assert.Equal(t, http.StatusNotFound, apierr.From(err).Status())
	assert.Len(t, svc.Servers(), len(vpn.DefaultServers))
}
