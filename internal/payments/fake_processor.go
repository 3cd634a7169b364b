package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

// FakeProcessor is an in-process Processor for local runs and tests.
type FakeProcessor struct {
	mu       sync.Mutex
	accounts map[string]ConnectedAccount
	intents  map[string]*Intent
	keys     map[string]string
	requests []IntentRequest
	seq      int

	// CreateErr, when set, fails every CreatePaymentIntent call.
	CreateErr error
}

func NewFakeProcessor(accounts ...ConnectedAccount) *FakeProcessor {
	p := &FakeProcessor{
		accounts: make(map[string]ConnectedAccount),
		intents:  make(map[string]*Intent),
		keys:     make(map[string]string),
	}
	for _, a := range accounts {
		p.accounts[a.ID] = a
	}
	return p
}

func (p *FakeProcessor) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.CreateErr != nil {
		return nil, apperr.Upstream("stripe", "create payment intent", p.CreateErr)
	}
	if id, ok := p.keys[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		out := *p.intents[id]
		return &out, nil
	}
	p.seq++
	id := fmt.Sprintf("pi_fake_%d", p.seq)
	if req.IdempotencyKey != "" {
		p.keys[req.IdempotencyKey] = id
	}
	intent := &Intent{
		ID:             id,
		ClientSecret:   id + "_secret",
		Amount:         req.Amount,
		ApplicationFee: req.ApplicationFee,
		Destination:    req.TransferDestination,
		Status:         "requires_payment_method",
		Metadata:       req.Metadata,
	}
	p.intents[id] = intent
	out := *intent
	return &out, nil
}

func (p *FakeProcessor) RetrievePaymentIntent(ctx context.Context, id string) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[id]
	if !ok {
		return nil, apperr.Upstream("stripe", "no such payment_intent "+id, nil)
	}
	out := *intent
	return &out, nil
}

func (p *FakeProcessor) RetrieveConnectedAccount(ctx context.Context, id string) (*ConnectedAccount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[id]
	if !ok {
		return nil, apperr.Upstream("stripe", "no such account "+id, nil)
	}
	return &acct, nil
}

// SetIntentStatus changes the status reported for an intent.
func (p *FakeProcessor) SetIntentStatus(id, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if intent, ok := p.intents[id]; ok {
		intent.Status = status
	}
}

// Created reports how many distinct intents exist.
func (p *FakeProcessor) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.intents)
}

// Requests returns every create request seen, in order.
func (p *FakeProcessor) Requests() []IntentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]IntentRequest(nil), p.requests...)
}
