// Package vpn is the tunnel collaborator behind the dashboard. MockService
// fabricates tunnels; nothing here touches a real interface.
package vpn

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/raakeshmj/vpnshield/internal/authz"
)

var (
	ErrUnknownServer = errors.New("unknown vpn server")
	ErrNotConnected  = errors.New("not connected")
)

type Server struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Location string     `json:"location"`
	Endpoint string     `json:"endpoint"`
	MinPlan  authz.Plan `json:"minPlan"`
}

type Connection struct {
	ServerID        string    `json:"serverId"`
	ClientIP        string    `json:"clientIp"`
	PublicKey       string    `json:"publicKey"`
	ServerPublicKey string    `json:"serverPublicKey"`
	ConnectedAt     time.Time `json:"connectedAt"`
	BytesIn         int64     `json:"bytesIn"`
	BytesOut        int64     `json:"bytesOut"`
}

type Service interface {
	Servers() []Server
	Server(id string) (Server, bool)
	Connect(ctx context.Context, email, serverID string) (*Connection, error)
	Disconnect(ctx context.Context, email string) (*Connection, error)
	Status(ctx context.Context, email string) (*Connection, bool)
}

// DefaultServers is the catalogue served by the mock.
var DefaultServers = []Server{
	{ID: "us-east", Name: "US East", Location: "New York", Endpoint: "us-east.vpn.example:51820", MinPlan: authz.PlanFree},
	{ID: "eu-west", Name: "EU West", Location: "Amsterdam", Endpoint: "eu-west.vpn.example:51820", MinPlan: authz.PlanFree},
	{ID: "ap-south", Name: "Asia Pacific", Location: "Singapore", Endpoint: "ap-south.vpn.example:51820", MinPlan: authz.PlanPremium},
	{ID: "streaming", Name: "Streaming", Location: "Los Angeles", Endpoint: "streaming.vpn.example:51820", MinPlan: authz.PlanUltimate},
	{ID: "dedicated", Name: "Dedicated IP", Location: "Frankfurt", Endpoint: "dedicated.vpn.example:51820", MinPlan: authz.PlanEnterprise},
}

var clientNet = netip.MustParsePrefix("10.8.0.0/16")

type MockService struct {
	mu         sync.Mutex
	servers    map[string]Server
	order      []string
	serverKeys map[string]wgtypes.Key
	sessions   map[string]*Connection
	now        func() time.Time
}

func NewMockService(servers []Server) (*MockService, error) {
	s := &MockService{
		servers:    make(map[string]Server, len(servers)),
		serverKeys: make(map[string]wgtypes.Key, len(servers)),
		sessions:   make(map[string]*Connection),
		now:        time.Now,
	}
	for _, srv := range servers {
		key, err := wgtypes.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("server key: %w", err)
		}
		s.servers[srv.ID] = srv
		s.order = append(s.order, srv.ID)
		s.serverKeys[srv.ID] = key
	}
	return s, nil
}

func (s *MockService) Servers() []Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Server, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.servers[id])
	}
	return out
}

func (s *MockService) Server(id string) (Server, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[id]
	return srv, ok
}

// Connect opens a tunnel for email, replacing any existing one.
func (s *MockService) Connect(_ context.Context, email, serverID string) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[serverID]; !ok {
		return nil, ErrUnknownServer
	}
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("client key: %w", err)
	}
	delete(s.sessions, email)
	ip, err := s.allocateIP()
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		ServerID:        serverID,
		ClientIP:        ip.String(),
		PublicKey:       priv.PublicKey().String(),
		ServerPublicKey: s.serverKeys[serverID].PublicKey().String(),
		ConnectedAt:     s.now(),
	}
	s.sessions[email] = conn
	c := *conn
	return &c, nil
}

// Disconnect closes the tunnel and reports mock traffic totals.
func (s *MockService) Disconnect(_ context.Context, email string) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.sessions[email]
	if !ok {
		return nil, ErrNotConnected
	}
	delete(s.sessions, email)

	// Roughly 64KiB/s each way for the connected duration.
	secs := int64(s.now().Sub(conn.ConnectedAt).Seconds())
	c := *conn
	c.BytesIn = secs * 64 << 10
	c.BytesOut = secs * 16 << 10
	return &c, nil
}

func (s *MockService) Status(_ context.Context, email string) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.sessions[email]
	if !ok {
		return nil, false
	}
	c := *conn
	return &c, true
}

// allocateIP picks a free host address in 10.8.0.0/16, skipping the
// network, gateway (.0.1) and broadcast addresses. Caller holds mu.
func (s *MockService) allocateIP() (netip.Addr, error) {
	used := make(map[string]bool, len(s.sessions))
	for _, c := range s.sessions {
		used[c.ClientIP] = true
	}
	base := clientNet.Addr().As4()
	var buf [2]byte
	for i := 0; i < 64; i++ {
		if _, err := rand.Read(buf[:]); err != nil {
			return netip.Addr{}, err
		}
		host := binary.BigEndian.Uint16(buf[:])
		if host <= 1 || host == 0xffff {
			continue
		}
		a := base
		a[2], a[3] = byte(host>>8), byte(host)
		ip := netip.AddrFrom4(a)
		if !used[ip.String()] {
			return ip, nil
		}
	}
	return netip.Addr{}, errors.New("client address pool exhausted")
}

var _ Service = (*MockService)(nil)
