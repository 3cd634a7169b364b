package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/teletherapy-platform/internal/config"
	"github.com/wolfman30/teletherapy-platform/internal/events"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

func devConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                "development",
		PaymentCurrency:    "usd",
		PlatformFeeBPS:     2000,
		VideoAutoProvision: true,
		DefaultTimezone:    "UTC",
	}
}

func TestBuildServicesInMemory(t *testing.T) {
	svc, err := BuildServices(context.Background(), devConfig(), nil, nil, nil, logging.Default())
	require.NoError(t, err)

	assert.NotNil(t, svc.Orchestrator)
	assert.NotNil(t, svc.Provisioner, "fake video provider outside production")
	assert.Nil(t, svc.SQL)
	assert.IsType(t, &events.MemoryNotifier{}, svc.Notifier)

	av, sl, bk, wh, rc := svc.Handlers(devConfig(), nil, logging.Default())
	assert.NotNil(t, av)
	assert.NotNil(t, sl)
	assert.NotNil(t, bk)
	assert.NotNil(t, wh)
	assert.NotNil(t, rc)
	assert.NotNil(t, svc.ReminderWorker(devConfig(), nil, logging.Default()))
}

func TestBuildServicesProductionRequiresDatabase(t *testing.T) {
	cfg := devConfig()
	cfg.Env = "production"
	_, err := BuildServices(context.Background(), cfg, nil, nil, nil, logging.Default())
	assert.Error(t, err)
}

func TestBuildProcessorProductionRequiresStripeKey(t *testing.T) {
	cfg := devConfig()
	cfg.Env = "production"
	_, err := buildProcessor(cfg, logging.Default())
	assert.Error(t, err)

	cfg.StripeSecretKey = "sk_test_123"
	p, err := buildProcessor(cfg, logging.Default())
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestBuildVideoProviderDisabledInProductionWithoutCredentials(t *testing.T) {
	cfg := devConfig()
	cfg.Env = "production"
	p, err := buildVideoProvider(context.Background(), cfg, logging.Default())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBuildRedisClient(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), devConfig(), nil, true))

	mr := miniredis.RunT(t)
	cfg := devConfig()
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logging.Default(), true)
	require.NotNil(t, client)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Default(), true))
}

func TestConnectPostgresPoolEmptyURL(t *testing.T) {
	pool, err := ConnectPostgresPool(context.Background(), "  ", nil)
	require.NoError(t, err)
	assert.Nil(t, pool)
}
