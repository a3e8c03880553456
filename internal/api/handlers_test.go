package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/promo-checkout/internal/auth"
	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/infrastructure/store/mocks"
	"github.com/example/promo-checkout/internal/payment"
	"github.com/example/promo-checkout/internal/sessions"
)

const testWebhookSecret = "whsec_test_secret"

type stubGateway struct {
	CreateCalls int
	UpdateCalls int
}

func (g *stubGateway) CreateIntent(_ context.Context, amount int64, _ string, _ map[string]string) (*payment.Authorization, error) {
	g.CreateCalls++
	return &payment.Authorization{IntentID: "pi_api", ClientSecret: "pi_api_secret", Amount: amount}, nil
}

func (g *stubGateway) UpdateIntentAmount(context.Context, string, int64) error {
	g.UpdateCalls++
	return nil
}

type stubSearcher struct {
	Tracks []checkout.Track
}

func (s *stubSearcher) Search(context.Context, string) []checkout.Track {
	return s.Tracks
}

type testServer struct {
	handler http.Handler
	orders  *mocks.MockOrderStore
	gateway *stubGateway
	jwt     *auth.JWTService
}

func newTestServer() *testServer {
	orders := mocks.NewMockOrderStore()
	gateway := &stubGateway{}
	registry := sessions.NewRegistry(orders, gateway, nil)
	reconciler := payment.NewReconciler(orders, nil, testWebhookSecret)
	searcher := &stubSearcher{Tracks: []checkout.Track{{ID: "t1", Name: "Found Song", Artist: "Artist"}}}
	jwtService := auth.NewJWTService("test-admin-secret", time.Hour)

	handlers := NewHandlers(registry, searcher, reconciler, orders)
	return &testServer{
		handler: NewRouter(handlers, jwtService),
		orders:  orders,
		gateway: gateway,
		jwt:     jwtService,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var view sessionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	return view
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decodeView(t, rec)
	require.NotEmpty(t, view.ID)
	return view.ID
}

func (ts *testServer) addItem(t *testing.T, sessionID, trackID string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/sessions/"+sessionID+"/items",
		map[string]any{"track": checkout.Track{ID: trackID, Name: "Song " + trackID, Artist: "Artist"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		ItemID string `json:"item_id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.ItemID)
	return resp.ItemID
}

func TestCreateAndGetSession(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodGet, "/sessions/"+id, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	assert.Equal(t, id, view.ID)
	assert.Empty(t, view.Items)
	assert.Equal(t, string(payment.StateUninitialized), string(view.Payment.State))
}

func TestGetSession_Unknown(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/sessions/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutFlow_TwoSongsWithDiscount(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)

	item1 := ts.addItem(t, id, "t1")
	item2 := ts.addItem(t, id, "t2")

	rec := ts.do(t, http.MethodPut, "/sessions/"+id+"/items/"+item1+"/tier", map[string]string{"tier_id": "pro"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPut, "/sessions/"+id+"/items/"+item2+"/tier", map[string]string{"tier_id": "gold"})
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeView(t, rec)
	assert.InDelta(t, 328.0, view.Quote.SubtotalBeforeDiscount, 0.001)
	assert.InDelta(t, 262.40, view.Quote.GrandTotal, 0.001)

	// Completing the contact arms the payment authorization.
	rec = ts.do(t, http.MethodPut, "/sessions/"+id+"/contact", map[string]string{
		"email":      "buyer@example.com",
		"first_name": "Jamie",
		"last_name":  "Rivera",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.Equal(t, string(payment.StateActive), string(view.Payment.State))
	assert.Equal(t, "pi_api_secret", view.Payment.ClientSecret)
	assert.Equal(t, int64(26240), view.Payment.AuthorizedAmount)
	assert.Equal(t, 1, ts.gateway.CreateCalls)
	assert.Len(t, ts.orders.InsertCalls, 1)
}

func TestRemoveItem_ClearsTierAndReprices(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	item1 := ts.addItem(t, id, "t1")
	item2 := ts.addItem(t, id, "t2")
	ts.do(t, http.MethodPut, "/sessions/"+id+"/items/"+item1+"/tier", map[string]string{"tier_id": "pro"})
	ts.do(t, http.MethodPut, "/sessions/"+id+"/items/"+item2+"/tier", map[string]string{"tier_id": "gold"})

	rec := ts.do(t, http.MethodDelete, "/sessions/"+id+"/items/"+item2, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	assert.Len(t, view.Items, 1)
	assert.NotContains(t, view.Tiers, item2)
	assert.InDelta(t, 199.0, view.Quote.GrandTotal, 0.001, "single item loses the discount")
}

func TestAssignTier_UnknownTier(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	item := ts.addItem(t, id, "t1")

	rec := ts.do(t, http.MethodPut, "/sessions/"+id+"/items/"+item+"/tier", map[string]string{"tier_id": "diamond"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddItem_MissingTrackFields(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/items", map[string]any{"track": checkout.Track{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStep_Invalid(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPut, "/sessions/"+id+"/step", map[string]int{"step": 9})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStep_PaymentAssignsDefaultTier(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	item := ts.addItem(t, id, "t1")

	rec := ts.do(t, http.MethodPut, "/sessions/"+id+"/step", map[string]int{"step": 3})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	require.Contains(t, view.Tiers, item)
	assert.Equal(t, "pro", view.Tiers[item].ID)
}

func TestSetAddons_ReflectedInQuote(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	item := ts.addItem(t, id, "t1")
	ts.do(t, http.MethodPut, "/sessions/"+id+"/items/"+item+"/tier", map[string]string{"tier_id": "bronze"})

	rec := ts.do(t, http.MethodPut, "/sessions/"+id+"/addons", map[string][]string{"addon_ids": {"apple-music"}})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	assert.Equal(t, []string{"apple-music"}, view.AddonIDs)
	assert.InDelta(t, 143.50, view.Quote.GrandTotal, 0.001)
}

func TestResetSession(t *testing.T) {
	ts := newTestServer()
	id := ts.createSession(t)
	ts.addItem(t, id, "t1")

	rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/reset", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	assert.Empty(t, view.Items)
	assert.Equal(t, string(payment.StateUninitialized), string(view.Payment.State))
}

func TestSearchTracks(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/tracks/search?q=found", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tracks []checkout.Track `json:"tracks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Tracks, 1)
	assert.Equal(t, "Found Song", resp.Tracks[0].Name)
}

func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhook_ValidSignature(t *testing.T) {
	ts := newTestServer()
	orderID, err := ts.orders.Insert(context.Background(), &order.Order{
		Contact:     checkout.BuyerContact{Email: "buyer@example.com", FirstName: "Jamie", LastName: "Rivera"},
		TotalAmount: 199.0,
		Status:      order.StatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, ts.orders.AttachPaymentIntent(context.Background(), orderID, "pi_hook"))

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_hook"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload, testWebhookSecret, time.Now()))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	o, err := ts.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	ts := newTestServer()

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_hook"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload, "whsec_wrong", time.Now()))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.orders.StatusCalls)
}

func TestAdminOrders_RequiresToken(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/admin/orders", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOrders_ListAndDetail(t *testing.T) {
	ts := newTestServer()
	orderID, err := ts.orders.Insert(context.Background(), &order.Order{
		Contact:     checkout.BuyerContact{Email: "buyer@example.com", FirstName: "Jamie", LastName: "Rivera"},
		TotalAmount: 199.0,
		Status:      order.StatusPending,
	})
	require.NoError(t, err)
	token, _, err := ts.jwt.GenerateToken("ops@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var orders []*order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orders))
	require.Len(t, orders, 1)

	req = httptest.NewRequest(http.MethodGet, "/admin/orders/"+orderID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var detail order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.Equal(t, orderID, detail.ID)
}

func TestAdminOrders_UnknownID(t *testing.T) {
	ts := newTestServer()
	token, _, err := ts.jwt.GenerateToken("ops@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/ghost", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
