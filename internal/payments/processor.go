package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

var stripeTracer = otel.Tracer("teletherapy.internal.payments.stripe")

// IntentRequest describes a payment intent to create. When
// TransferDestination is set the platform withholds ApplicationFee and the
// processor routes the remainder to that connected account.
type IntentRequest struct {
	Amount              int64
	Currency            string
	Description         string
	Metadata            map[string]string
	ApplicationFee      int64
	TransferDestination string
	IdempotencyKey      string
}

// Intent is the processor's view of a payment intent.
type Intent struct {
	ID             string
	ClientSecret   string
	Amount         int64
	ApplicationFee int64
	Destination    string
	Status         string
	Metadata       map[string]string
}

// ConnectedAccount is the payout state of a counselor's account.
type ConnectedAccount struct {
	ID              string
	TransfersActive bool
	ChargesEnabled  bool
	PayoutsEnabled  bool
}

// Processor is the external payment processor.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*Intent, error)
	RetrieveConnectedAccount(ctx context.Context, id string) (*ConnectedAccount, error)
}

// StripeConfig configures StripeProcessor.
type StripeConfig struct {
	SecretKey  string
	APIBase    string // override for tests and stripe-mock
	HTTPClient *http.Client
	MaxRetries int64
}

// StripeProcessor implements Processor with stripe-go.
type StripeProcessor struct {
	api    *client.API
	logger *logging.Logger
}

func NewStripeProcessor(cfg StripeConfig, logger *logging.Logger) *StripeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Component("stripe")
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     stripeLogger{logger},
	}
	if cfg.APIBase != "" {
		backendCfg.URL = stripe.String(cfg.APIBase)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})
	return &StripeProcessor{api: api, logger: logger}
}

func (p *StripeProcessor) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, span := stripeTracer.Start(ctx, "payments.stripe.create_intent")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("payments.amount", req.Amount),
		attribute.Bool("payments.connect", req.TransferDestination != ""),
	)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.TransferDestination != "" {
		params.ApplicationFeeAmount = stripe.Int64(req.ApplicationFee)
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.TransferDestination),
		}
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Upstream("stripe", "create payment intent: "+stripeMessage(err), err)
	}
	return intentFromStripe(pi), nil
}

func (p *StripeProcessor) RetrievePaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, apperr.Upstream("stripe", "retrieve payment intent: "+stripeMessage(err), err)
	}
	return intentFromStripe(pi), nil
}

func (p *StripeProcessor) RetrieveConnectedAccount(ctx context.Context, id string) (*ConnectedAccount, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := p.api.Accounts.GetByID(id, params)
	if err != nil {
		return nil, apperr.Upstream("stripe", "retrieve connected account: "+stripeMessage(err), err)
	}
	out := &ConnectedAccount{
		ID:             acct.ID,
		ChargesEnabled: acct.ChargesEnabled,
		PayoutsEnabled: acct.PayoutsEnabled,
	}
	if acct.Capabilities != nil {
		out.TransfersActive = acct.Capabilities.Transfers == stripe.AccountCapabilityStatusActive
	}
	return out, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	out := &Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Amount:         pi.Amount,
		ApplicationFee: pi.ApplicationFeeAmount,
		Status:         string(pi.Status),
		Metadata:       pi.Metadata,
	}
	if pi.TransferData != nil && pi.TransferData.Destination != nil {
		out.Destination = pi.TransferData.Destination.ID
	}
	return out
}

func stripeMessage(err error) string {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.Msg != "" {
			return fmt.Sprintf("%s (status %d)", serr.Msg, serr.HTTPStatusCode)
		}
		return fmt.Sprintf("status %d", serr.HTTPStatusCode)
	}
	return err.Error()
}

// stripeLogger routes stripe-go's internal logging through slog.
type stripeLogger struct {
	l *logging.Logger
}

func (s stripeLogger) Debugf(format string, v ...interface{}) { s.l.Debug(fmt.Sprintf(format, v...)) }
func (s stripeLogger) Infof(format string, v ...interface{})  { s.l.Debug(fmt.Sprintf(format, v...)) }
func (s stripeLogger) Warnf(format string, v ...interface{})  { s.l.Warn(fmt.Sprintf(format, v...)) }
func (s stripeLogger) Errorf(format string, v ...interface{}) { s.l.Error(fmt.Sprintf(format, v...)) }
