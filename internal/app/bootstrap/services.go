package bootstrap

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/teletherapy-platform/internal/availability"
	"github.com/wolfman30/teletherapy-platform/internal/booking"
	appconfig "github.com/wolfman30/teletherapy-platform/internal/config"
	"github.com/wolfman30/teletherapy-platform/internal/counselors"
	"github.com/wolfman30/teletherapy-platform/internal/events"
	"github.com/wolfman30/teletherapy-platform/internal/http/handlers"
	"github.com/wolfman30/teletherapy-platform/internal/observability/metrics"
	"github.com/wolfman30/teletherapy-platform/internal/payments"
	"github.com/wolfman30/teletherapy-platform/internal/reminders"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
	"github.com/wolfman30/teletherapy-platform/internal/slots"
	"github.com/wolfman30/teletherapy-platform/internal/video"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// Services is the wired scheduling core shared by the API and worker.
type Services struct {
	Availability *availability.Store
	Sessions     sessions.Repository
	Counselors   counselors.Repository
	Payments     payments.Repository
	Resolver     *slots.Resolver
	Settlement   *payments.Settlement
	Provisioner  *video.Provisioner
	Orchestrator *booking.Orchestrator
	Notifier     events.Notifier
	Outbox       *events.OutboxStore
	Processed    interface {
		AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
		MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error)
	}
	SQL *sql.DB
}

// BuildServices wires repositories and adapters. A nil pool selects the
// in-memory stores, which production refuses.
func BuildServices(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, m *metrics.BookingMetrics, logger *logging.Logger) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil && cfg.IsProduction() {
		return nil, errors.New("bootstrap: DATABASE_URL is required in production")
	}

	svc := &Services{}
	var (
		availabilityRepo availability.Repository
		meetingRepo      video.Repository
	)
	if pool != nil {
		availabilityRepo = availability.NewPostgresRepository(pool)
		svc.Sessions = sessions.NewPostgresRepository(pool)
		svc.Counselors = counselors.NewPostgresRepository(pool)
		svc.Payments = payments.NewPostgresRepository(pool)
		meetingRepo = video.NewPostgresRepository(pool)
		svc.Outbox = events.NewOutboxStore(pool)
		svc.Notifier = events.NewOutboxNotifier(svc.Outbox)
		svc.Processed = events.NewProcessedStore(pool)
		svc.SQL = stdlib.OpenDBFromPool(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		availabilityRepo = availability.NewInMemoryRepository()
		svc.Sessions = sessions.NewInMemoryRepository()
		svc.Counselors = counselors.NewInMemoryRepository()
		svc.Payments = payments.NewInMemoryRepository()
		meetingRepo = video.NewInMemoryRepository()
		svc.Notifier = &events.MemoryNotifier{}
		svc.Processed = events.NewMemoryProcessedStore()
	}
	svc.Availability = availability.NewStore(availabilityRepo, logger)
	svc.Resolver = slots.NewResolver(svc.Availability, svc.Sessions)

	processor, err := buildProcessor(cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.Settlement = payments.NewSettlement(processor, svc.Payments, payments.SettlementConfig{
		Currency:       cfg.PaymentCurrency,
		PlatformFeeBPS: cfg.PlatformFeeBPS,
	}, m, logger)

	provider, err := buildVideoProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var locker video.Locker = video.NewLocalLocker()
	if redisClient != nil {
		locker = video.NewRedisLocker(redisClient)
	}
	if provider != nil {
		svc.Provisioner = video.NewProvisioner(svc.Sessions, svc.Counselors, meetingRepo, provider, locker, video.ProvisionerConfig{
			LockTTL:         cfg.VideoLockTTL,
			DefaultTimezone: cfg.DefaultTimezone,
		}, m, logger)
	}

	var vp booking.MeetingProvisioner
	if svc.Provisioner != nil {
		vp = svc.Provisioner
	}
	svc.Orchestrator = booking.NewOrchestrator(svc.Resolver, svc.Sessions, svc.Counselors, svc.Settlement, vp, svc.Notifier,
		booking.Config{AutoProvisionVideo: cfg.VideoAutoProvision}, m, logger)
	return svc, nil
}

func buildProcessor(cfg *appconfig.Config, logger *logging.Logger) (payments.Processor, error) {
	if cfg.StripeSecretKey != "" {
		return payments.NewStripeProcessor(payments.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			APIBase:   cfg.StripeAPIBase,
		}, logger), nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("bootstrap: STRIPE_SECRET_KEY is required in production")
	}
	logger.Warn("STRIPE_SECRET_KEY not set, using fake payment processor")
	return payments.NewFakeProcessor(), nil
}

func buildVideoProvider(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (video.Provider, error) {
	if cfg.ZoomAccountID != "" && cfg.ZoomClientID != "" && cfg.ZoomClientSecret != "" {
		return video.NewZoomClient(ctx, video.ZoomConfig{
			AccountID:    cfg.ZoomAccountID,
			ClientID:     cfg.ZoomClientID,
			ClientSecret: cfg.ZoomClientSecret,
			APIBase:      cfg.ZoomAPIBase,
			TokenURL:     cfg.ZoomTokenURL,
		}), nil
	}
	if cfg.IsProduction() {
		logger.Warn("zoom credentials not set, video provisioning disabled")
		return nil, nil
	}
	logger.Warn("zoom credentials not set, using fake video provider")
	return video.NewFakeProvider(), nil
}

// Handlers builds the HTTP handlers for the router.
func (s *Services) Handlers(cfg *appconfig.Config, m *metrics.BookingMetrics, logger *logging.Logger) (*availability.Handler, *slots.Handler, *booking.Handler, *payments.StripeWebhookHandler, *handlers.AdminReconciliationHandler) {
	var meetings booking.MeetingDeleter
	if s.Provisioner != nil {
		meetings = s.Provisioner
	}
	return availability.NewHandler(s.Availability, logger),
		slots.NewHandler(s.Resolver, logger),
		booking.NewHandler(s.Orchestrator, meetings, logger),
		payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, s.Payments, s.Processed, s.Notifier, m, logger),
		handlers.NewAdminReconciliationHandler(s.SQL, cfg.StaleBookingAge, logger)
}

// ReminderWorker builds the reminder worker on the wired stores.
func (s *Services) ReminderWorker(cfg *appconfig.Config, m *metrics.BookingMetrics, logger *logging.Logger) *reminders.Worker {
	return reminders.NewWorker(s.Sessions, s.Counselors, s.Notifier, reminders.Config{
		LeadTime:        cfg.ReminderLeadTime,
		Interval:        cfg.ReminderInterval,
		DefaultTimezone: cfg.DefaultTimezone,
	}, m, logger)
}
