// Package server exposes the engine over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	aegisv1 "github.com/ppiankov/aegis/api/aegis/v1"
	"github.com/ppiankov/aegis/internal/alert"
	"github.com/ppiankov/aegis/internal/config"
	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/envelope"
	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/verify"
)

// DefaultEvents is how many log events RecentEvents returns when n is unset.
const DefaultEvents = 20

// Gate is the engine surface the server needs. *engine.Engine satisfies it.
type Gate interface {
	Submit(ctx context.Context, raw model.RawCommand) (*engine.Pending, error)
	SafeMode() model.SafeModeState
	Vehicle() model.VehicleState
	Events(n int) []model.LogEvent
	SessionID() string
}

// Config holds gRPC server configuration.
type Config struct {
	Addr string
	// ConfigPath is re-read by Reload. Empty disables reload.
	ConfigPath string
	ConfigHash string
}

// Option customises a Server.
type Option func(*Server)

// WithKeyring lets Reload rotate keys in place.
func WithKeyring(kr *verify.Keyring) Option {
	return func(s *Server) { s.keyring = kr }
}

// WithHealth shares a health sink that is also registered with the engine.
func WithHealth(h *Health) Option {
	return func(s *Server) { s.health = h }
}

// WithAlerts lets Reload replace the alert dispatcher.
func WithAlerts(a *AlertSink) Option {
	return func(s *Server) { s.alerts = a }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server implements the CommandGate gRPC service.
type Server struct {
	gate    Gate
	keyring *verify.Keyring
	health  *Health
	alerts  *AlertSink
	logger  *slog.Logger

	mu         sync.RWMutex
	configHash string
	cfg        Config

	grpcServer *grpc.Server
}

var _ aegisv1.CommandGateServer = (*Server)(nil)

// New creates a gRPC server in front of gate.
func New(cfg Config, gate Gate, opts ...Option) *Server {
	s := &Server{gate: gate, cfg: cfg, configHash: cfg.ConfigHash}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.health == nil {
		s.health = NewHealth()
	}

	s.grpcServer = grpc.NewServer()
	aegisv1.RegisterCommandGateServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health.srv)
	return s
}

// Serve listens on the configured address. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// ServeOn serves on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the service unhealthy and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// ConfigHash returns the hash of the configuration last applied.
func (s *Server) ConfigHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configHash
}

// Submit implements the Submit RPC. It blocks until the decision is ready.
func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := aegisv1.CommandFromStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode command: %v", err)
	}

	p, err := s.gate.Submit(ctx, raw)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := p.Wait(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return aegisv1.ToStruct(aegisv1.SubmitResponse{
		EnvelopeID: out.Envelope.ID,
		Decision:   out.Decision,
		SafeMode:   out.SafeMode,
		LatencyMS:  float64(out.Latency.Microseconds()) / 1000,
	})
}

// SafeMode implements the SafeMode RPC.
func (s *Server) SafeMode(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return aegisv1.ToStruct(aegisv1.StatusResponse{
		SessionID: s.gate.SessionID(),
		SafeMode:  s.gate.SafeMode(),
		Vehicle:   s.gate.Vehicle(),
	})
}

// RecentEvents implements the RecentEvents RPC.
func (s *Server) RecentEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n := DefaultEvents
	if v, ok := req.GetFields()["n"]; ok {
		n = int(v.GetNumberValue())
	}
	events := s.gate.Events(n)
	if events == nil {
		events = []model.LogEvent{}
	}
	return aegisv1.ToStruct(aegisv1.EventsResponse{Events: events})
}

// Reload re-reads the config file and applies what can change live: the
// key set and the alert webhooks. Engine tuning needs a restart.
func (s *Server) Reload() error {
	if s.cfg.ConfigPath == "" {
		return errors.New("server: no config path to reload")
	}
	cfg, hash, err := config.LoadWithHash(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	if s.keyring != nil {
		if err := syncKeys(s.keyring, cfg); err != nil {
			return err
		}
	}
	if s.alerts != nil {
		s.alerts.Swap(alert.NewDispatcher(cfg.Alerts, s.gate.SessionID(), s.logger))
	}

	s.mu.Lock()
	prev := s.configHash
	s.configHash = hash
	s.mu.Unlock()

	s.logger.Info("config reloaded", "hash", hash, "previous", prev)
	return nil
}

// syncKeys makes kr match the configured keys. All secrets are decoded
// before any change so a bad entry leaves the keyring untouched.
func syncKeys(kr *verify.Keyring, cfg *config.Config) error {
	next, err := cfg.Keyring()
	if err != nil {
		return err
	}
	keep := make(map[string]bool)
	for _, id := range next.IDs() {
		keep[id] = true
	}
	for _, id := range kr.IDs() {
		if !keep[id] {
			kr.Revoke(id)
		}
	}
	for id, spec := range cfg.Keys {
		secret, err := verify.DecodeSecret(spec)
		if err != nil {
			return err
		}
		if err := kr.Add(id, secret); err != nil {
			return err
		}
	}
	return nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, envelope.ErrInvalidCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
