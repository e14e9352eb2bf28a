package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bitfsorg/libsplit-go/config"
	"github.com/bitfsorg/libsplit-go/ledger"
	"github.com/bitfsorg/libsplit-go/wallet"
)

var (
	testToken = ledger.MustParseAddress("0x00000000000000000000000000000000000000aa")
	alice     = ledger.MustParseAddress("0x0000000000000000000000000000000000000011")
	bob       = ledger.MustParseAddress("0x0000000000000000000000000000000000000012")
	creator   = ledger.MustParseAddress("0x0000000000000000000000000000000000000020")
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Backend = backend
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_MemoryBackend(t *testing.T) {
	a := newTestApp(t, testConfig(t, config.BackendMemory))

	assert.False(t, a.Factory.Address().IsZero())
	_, ok := a.Chain.Contract(a.Factory.Address())
	assert.True(t, ok, "factory must be deployed on the chain")

	ctx := context.Background()
	inst, _, err := a.Factory.Instantiate(ctx, creator, testToken,
		[]ledger.Address{alice, bob}, []uint8{60, 40})
	require.NoError(t, err)

	ok, err = a.Factory.IsInstantiation(ctx, inst)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_CustomDeployer(t *testing.T) {
	deployer := ledger.MustParseAddress("0x00000000000000000000000000000000000000d1")
	a, err := New(context.Background(), testConfig(t, config.BackendMemory),
		WithLogger(zap.NewNop()), WithDeployer(deployer))
	require.NoError(t, err)
	defer a.Close()

	def := newTestApp(t, testConfig(t, config.BackendMemory))
	assert.NotEqual(t, def.Factory.Address(), a.Factory.Address())
}

func TestNew_DeployerFromConfig(t *testing.T) {
	deployer := ledger.MustParseAddress("0x00000000000000000000000000000000000000d1")
	encoded, err := wallet.EncodeAddress(deployer, &wallet.MainNet)
	require.NoError(t, err)

	cfg := testConfig(t, config.BackendMemory)
	cfg.Deployer = encoded
	fromConfig := newTestApp(t, cfg)

	fromOption, err := New(context.Background(), testConfig(t, config.BackendMemory),
		WithLogger(zap.NewNop()), WithDeployer(deployer))
	require.NoError(t, err)
	defer fromOption.Close()

	assert.Equal(t, fromOption.Factory.Address(), fromConfig.Factory.Address())
}

func TestApp_EncodeAddress(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	a := newTestApp(t, cfg)

	s := a.EncodeAddress(a.Factory.Address())
	assert.True(t, strings.HasPrefix(s, "1"), "mainnet P2PKH starts with 1, got %s", s)

	decoded, err := wallet.DecodeAddress(s)
	require.NoError(t, err)
	assert.Equal(t, a.Factory.Address(), decoded)

	cfg = testConfig(t, config.BackendMemory)
	cfg.Network = "testnet"
	assert.NotEqual(t, s, newTestApp(t, cfg).EncodeAddress(a.Factory.Address()))
}

func TestNew_BoltBackendPersists(t *testing.T) {
	cfg := testConfig(t, config.BackendBolt)
	ctx := context.Background()

	a, err := New(ctx, cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	inst, _, err := a.Factory.Instantiate(ctx, creator, testToken,
		[]ledger.Address{alice}, []uint8{100})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.FileExists(t, config.RegistryPath(cfg.DataDir))

	reopened := newTestApp(t, cfg)
	n, err := reopened.Store.Count(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	got, err := reopened.Store.At(ctx, creator, 0)
	require.NoError(t, err)
	assert.Equal(t, inst, got)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"bad backend", func(c *config.Config) { c.Backend = "redis" }, config.ErrInvalidBackend},
		{"postgres without dsn", func(c *config.Config) { c.Backend = config.BackendPostgres }, config.ErrMissingDSN},
		{"empty datadir", func(c *config.Config) { c.DataDir = "" }, config.ErrEmptyDataDir},
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }, config.ErrInvalidLogLevel},
		{"bad deployer", func(c *config.Config) { c.Deployer = "nobody" }, config.ErrInvalidDeployer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, config.BackendMemory)
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHandler_Metrics(t *testing.T) {
	a := newTestApp(t, testConfig(t, config.BackendMemory))
	_, _, err := a.Factory.Instantiate(context.Background(), creator, testToken,
		[]ledger.Address{alice, bob}, []uint8{50, 50})
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "splitpay_factory_instantiations_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestHandler_Healthz(t *testing.T) {
	a := newTestApp(t, testConfig(t, config.BackendMemory))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServe_StopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig(t, config.BackendMemory))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
