package server

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	aegisv1 "github.com/ppiankov/aegis/api/aegis/v1"
	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
	"github.com/ppiankov/aegis/internal/trust"
	"github.com/ppiankov/aegis/internal/verify"
)

const (
	session = "server-test"
	hexKey  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type rig struct {
	srv     *Server
	engine  *engine.Engine
	keyring *verify.Keyring
	signer  *verify.Signer
	gate    *aegisv1.CommandGateClient
	health  healthpb.HealthClient
}

// testServer spins up an in-process gRPC server on a random port and returns clients.
func testServer(t *testing.T, cfg Config) *rig {
	t.Helper()

	secret, err := verify.DecodeSecret(hexKey)
	require.NoError(t, err)
	kr := verify.NewKeyring()
	require.NoError(t, kr.Add("gcs-1", secret))

	health := NewHealth()
	alerts := NewAlertSink(nil)
	e, err := engine.New(engine.Config{SessionID: session, Dwell: time.Minute}, kr,
		engine.WithLogger(quiet), engine.WithScorer(trust.Fixed(0.9)), engine.WithSink(health, alerts))
	require.NoError(t, err)

	srv := New(cfg, e, WithKeyring(kr), WithHealth(health), WithAlerts(alerts), WithLogger(quiet))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.ServeOn(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		_ = e.Close()
	})
	return &rig{
		srv:     srv,
		engine:  e,
		keyring: kr,
		signer:  verify.NewSigner(verify.SuiteAESGCM, kr, session),
		gate:    aegisv1.NewCommandGateClient(conn),
		health:  healthpb.NewHealthClient(conn),
	}
}

func (r *rig) submit(t *testing.T, raw model.RawCommand) (aegisv1.SubmitResponse, error) {
	t.Helper()
	req, err := aegisv1.CommandToStruct(raw)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out aegisv1.SubmitResponse
	resp, err := r.gate.Submit(ctx, req)
	if err != nil {
		return out, err
	}
	require.NoError(t, aegisv1.FromStruct(resp, &out))
	return out, nil
}

func (r *rig) signed(t *testing.T, kind string, nonce uint64) model.RawCommand {
	t.Helper()
	raw, err := r.signer.SignRaw(model.RawCommand{Kind: kind, KeyID: "gcs-1", Nonce: nonce, Source: "known_ground_station"})
	require.NoError(t, err)
	return raw
}

func (r *rig) vehicleStatus(t *testing.T) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: aegisv1.VehicleService})
	require.NoError(t, err)
	return resp.Status
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSubmitAcceptsSignedCommand(t *testing.T) {
	r := testServer(t, Config{})

	out, err := r.submit(t, r.signed(t, "ARM", 1))
	require.NoError(t, err)
	assert.Equal(t, model.Accepted, out.Decision.Verdict)
	assert.NotEmpty(t, out.EnvelopeID)
	assert.Equal(t, model.SafeNominal, out.SafeMode.Mode)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, r.vehicleStatus(t))
}

func TestTamperedCommandMarksVehicleNotServing(t *testing.T) {
	r := testServer(t, Config{})

	raw := r.signed(t, "ARM", 1)
	tag, err := base64.StdEncoding.DecodeString(raw.AuthTag)
	require.NoError(t, err)
	tag[0] ^= 0xff
	raw.AuthTag = base64.StdEncoding.EncodeToString(tag)

	out, err := r.submit(t, raw)
	require.NoError(t, err)
	assert.Equal(t, model.Rejected, out.Decision.Verdict)
	assert.Equal(t, model.CodeIntegrityFailure, out.Decision.Code)
	assert.Equal(t, model.SafeReturnToLaunch, out.SafeMode.Mode)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, r.vehicleStatus(t))

	// the gate itself stays up
	resp, err := r.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: aegisv1.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestSubmitMalformedIsInvalidArgument(t *testing.T) {
	r := testServer(t, Config{})

	_, err := r.submit(t, model.RawCommand{Kind: "SELF_DESTRUCT", KeyID: "gcs-1", Nonce: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad, err := structpb.NewStruct(map[string]any{"kind": "ARM", "nonce": -3.0})
	require.NoError(t, err)
	_, err = r.gate.Submit(context.Background(), bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSubmitAfterCloseIsUnavailable(t *testing.T) {
	r := testServer(t, Config{})
	require.NoError(t, r.engine.Close())

	_, err := r.submit(t, r.signed(t, "ARM", 1))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestSafeModeAndRecentEvents(t *testing.T) {
	r := testServer(t, Config{})
	_, err := r.submit(t, r.signed(t, "ARM", 1))
	require.NoError(t, err)
	_, err = r.submit(t, r.signed(t, "ARM", 1))
	require.NoError(t, err)

	resp, err := r.gate.SafeMode(context.Background())
	require.NoError(t, err)
	var st aegisv1.StatusResponse
	require.NoError(t, aegisv1.FromStruct(resp, &st))
	assert.Equal(t, session, st.SessionID)
	assert.Equal(t, model.SafeHold, st.SafeMode.Mode, "replay holds")
	assert.Equal(t, "HOLD", st.Vehicle.FlightMode)

	req, err := structpb.NewStruct(map[string]any{"n": 3.0})
	require.NoError(t, err)
	resp, err = r.gate.RecentEvents(context.Background(), req)
	require.NoError(t, err)
	var ev aegisv1.EventsResponse
	require.NoError(t, aegisv1.FromStruct(resp, &ev))
	assert.Len(t, ev.Events, 3)
}

func TestReloadRotatesKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "keys:\n  gcs-2: \"hex:"+hexKey+"\"\n")
	r := testServer(t, Config{ConfigPath: path, ConfigHash: "sha256:old"})
	raw := r.signed(t, "ARM", 1)

	require.NoError(t, r.srv.Reload())
	assert.Equal(t, []string{"gcs-2"}, r.keyring.IDs())
	assert.NotEqual(t, "sha256:old", r.srv.ConfigHash())

	out, err := r.submit(t, raw)
	require.NoError(t, err)
	assert.Equal(t, model.CodeUnknownKey, out.Decision.Code, "revoked key must stop verifying")
}

func TestReloadKeepsKeysOnBadConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "keys:\n  gcs-2: \"hex:zz\"\n")
	r := testServer(t, Config{ConfigPath: path})

	assert.Error(t, r.srv.Reload())
	assert.Equal(t, []string{"gcs-1"}, r.keyring.IDs())
	assert.Error(t, New(Config{}, r.engine).Reload(), "no path")
}

func TestReloaderAppliesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "keys:\n  gcs-1: \"hex:"+hexKey+"\"\n")
	r := testServer(t, Config{ConfigPath: path})

	rl, err := NewReloader(r.srv)
	require.NoError(t, err)
	rl.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rl.Run(ctx) }()

	writeConfig(t, dir, "keys:\n  gcs-3: \"hex:"+hexKey+"\"\n")
	require.Eventually(t, func() bool {
		ids := r.keyring.IDs()
		return len(ids) == 1 && ids[0] == "gcs-3"
	}, 5*time.Second, 20*time.Millisecond)
}
