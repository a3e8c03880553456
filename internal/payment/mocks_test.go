package payment

import (
	"context"
	"fmt"
	"sync"
)

// CreateCall records parameters passed to CreateIntent
type CreateCall struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// UpdateCall records parameters passed to UpdateIntentAmount
type UpdateCall struct {
	IntentID string
	Amount   int64
}

type mockGateway struct {
	mu sync.Mutex

	CreateCalls []CreateCall
	UpdateCalls []UpdateCall

	CreateErr error
	UpdateErr error

	// Optional hooks invoked while the call is "in flight", before the
	// gateway responds. Used to race resets and newer totals against
	// pending calls.
	OnCreate func()
	OnUpdate func()
}

func newMockGateway() *mockGateway {
	return &mockGateway{}
}

func (g *mockGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Authorization, error) {
	g.mu.Lock()
	g.CreateCalls = append(g.CreateCalls, CreateCall{Amount: amount, Currency: currency, Metadata: metadata})
	n := len(g.CreateCalls)
	hook := g.OnCreate
	err := g.CreateErr
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &Authorization{
		IntentID:     fmt.Sprintf("pi_test_%d", n),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", n),
		Amount:       amount,
	}, nil
}

func (g *mockGateway) UpdateIntentAmount(ctx context.Context, intentID string, amount int64) error {
	g.mu.Lock()
	g.UpdateCalls = append(g.UpdateCalls, UpdateCall{IntentID: intentID, Amount: amount})
	hook := g.OnUpdate
	g.OnUpdate = nil // hooks fire once
	err := g.UpdateErr
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

type mockPublisher struct {
	mu     sync.Mutex
	Events []any
	Keys   []string
	Err    error
}

func (p *mockPublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.Keys = append(p.Keys, key)
	p.Events = append(p.Events, event)
	return nil
}
