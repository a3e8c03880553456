package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/google/uuid"
)

// AttachCall records parameters passed to AttachPaymentIntent
type AttachCall struct {
	OrderID  string
	IntentID string
}

// StatusCall records parameters passed to UpdateStatusByIntentID
type StatusCall struct {
	IntentID string
	Status   order.Status
}

// MockOrderStore is an in-memory order.Store for testing
type MockOrderStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order

	// For tracking calls in tests
	InsertCalls []*order.Order
	AttachCalls []AttachCall
	StatusCalls []StatusCall

	// Injected failures
	InsertErr error
	AttachErr error
	StatusErr error
}

// NewMockOrderStore creates a new MockOrderStore
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		orders: make(map[string]*order.Order),
	}
}

func (m *MockOrderStore) Insert(ctx context.Context, o *order.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertCalls = append(m.InsertCalls, o)
	if m.InsertErr != nil {
		return "", m.InsertErr
	}

	stored := *o
	stored.ID = uuid.New().String()
	if stored.Status == "" {
		stored.Status = order.StatusPending
	}
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.orders[stored.ID] = &stored
	return stored.ID, nil
}

func (m *MockOrderStore) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AttachCalls = append(m.AttachCalls, AttachCall{OrderID: orderID, IntentID: intentID})
	if m.AttachErr != nil {
		return m.AttachErr
	}

	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentIntentID = intentID
	return nil
}

func (m *MockOrderStore) UpdateStatusByIntentID(ctx context.Context, intentID string, status order.Status) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StatusCalls = append(m.StatusCalls, StatusCall{IntentID: intentID, Status: status})
	if m.StatusErr != nil {
		return 0, m.StatusErr
	}

	var affected int64
	for _, o := range m.orders {
		if o.PaymentIntentID == intentID && o.Status != status {
			o.Status = status
			o.UpdatedAt = time.Now()
			affected++
		}
	}
	return affected, nil
}

func (m *MockOrderStore) GetByPaymentIntentID(ctx context.Context, intentID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.PaymentIntentID == intentID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *MockOrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *MockOrderStore) List(ctx context.Context) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		copied := *o
		orders = append(orders, &copied)
	}
	return orders, nil
}
