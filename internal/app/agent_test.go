package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/client"
	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/mirror"
	"github.com/vladislavdragonenkov/cadm/internal/service/transition"
)

// fakeBackend — минимальный in-memory каталожный бэкенд для тестов
// агента: листинг с курсором, статусные переходы и корректировка стока.
type fakeBackend struct {
	mu          sync.Mutex
	orders      []domain.Order
	failAdjust  bool
	adjustCalls int
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders", b.handleOrders)
	mux.HandleFunc("/api/orders/", b.handleOrder)
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"products": []domain.Product{}, "hasMore": false})
	})
	mux.HandleFunc("/api/update-stock", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.adjustCalls++
		if b.failAdjust {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "stock service down"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/send-to-courier", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (b *fakeBackend) handleOrders(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := len(b.orders)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	start := 0
	if after := r.URL.Query().Get("after"); after != "" {
		for i, o := range b.orders {
			if o.ID == after {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(b.orders) {
		end = len(b.orders)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders":  b.orders[start:end],
		"hasMore": end < len(b.orders),
	})
}

func (b *fakeBackend) handleOrder(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	id := strings.TrimSuffix(rest, "/status")

	idx := -1
	for i, o := range b.orders {
		if o.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "order not found"})
		return
	}

	switch {
	case r.Method == http.MethodPut && strings.HasSuffix(rest, "/status"):
		var req struct {
			Status domain.OrderStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad payload"})
			return
		}
		b.orders[idx].Status = req.Status
		b.orders[idx].Version++
		writeJSON(w, http.StatusOK, map[string]interface{}{"order": b.orders[idx]})
	case r.Method == http.MethodDelete:
		b.orders = append(b.orders[:idx], b.orders[idx+1:]...)
		w.WriteHeader(http.StatusOK)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "unsupported"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestAgent(t *testing.T, backend *fakeBackend, pageSize int) (*Agent, *gin.Engine) {
	t.Helper()

	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	logger := log.New()
	logger.SetOutput(nullWriter{})
	entry := logger.WithField("component", "test")

	rest := client.New(srv.URL, entry)

	ordersView := mirror.NewView[domain.Order]()
	ordersCtrl := mirror.NewController("orders", ordersView, rest.Orders(), pageSize, entry, nil)
	ordersApplier := mirror.NewApplier("orders", ordersView, entry, nil)

	productsView := mirror.NewView[domain.Product]()
	productsCtrl := mirror.NewController("products", productsView, rest.Products(), pageSize, entry, nil)
	productsApplier := mirror.NewApplier("products", productsView, entry, nil)

	agent := &Agent{
		rest:            rest,
		ordersCtrl:      ordersCtrl,
		ordersApplier:   ordersApplier,
		ordersAnchor:    mirror.NewSentinelTrigger(ordersCtrl, entry),
		productsCtrl:    productsCtrl,
		productsApplier: productsApplier,
		productsAnchor:  mirror.NewSentinelTrigger(productsCtrl, entry),
		machine:         transition.NewMachine(rest.Orders(), rest, rest, ordersApplier, entry, nil),
		logger:          entry,
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	agent.Routes(router)
	return agent, router
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func seedOrders(ids ...string) []domain.Order {
	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, domain.Order{
			ID:     id,
			Status: domain.OrderStatusPending,
			Cart: []domain.CartLine{
				{ProductID: "p1", Size: "M", Quantity: 1, PriceMinor: 500},
			},
		})
	}
	return orders
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAgentViewOrdersAfterReplace(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1", "o2", "o3")}
	agent, router := newTestAgent(t, backend, 2)

	if err := agent.ordersCtrl.Replace(t.Context(), domain.Filter{}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rec := doRequest(t, router, http.MethodGet, "/view/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Orders  []domain.Order `json:"orders"`
		HasMore bool           `json:"hasMore"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 2 || !resp.HasMore {
		t.Fatalf("got %d orders hasMore=%v, want 2 orders hasMore=true", len(resp.Orders), resp.HasMore)
	}
}

func TestAgentSentinelAppendsNextPage(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1", "o2", "o3")}
	agent, router := newTestAgent(t, backend, 2)

	if err := agent.ordersCtrl.Replace(t.Context(), domain.Filter{}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rec := doRequest(t, router, http.MethodPost, "/view/orders/sentinel", `{"visible":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := agent.ordersCtrl.View().Len(); got != 3 {
		t.Fatalf("view size = %d, want 3", got)
	}
	if agent.ordersCtrl.HasMore() {
		t.Fatal("hasMore = true after exhausting backend")
	}
}

func TestAgentFilterRejectsBadDate(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1")}
	_, router := newTestAgent(t, backend, 10)

	rec := doRequest(t, router, http.MethodPost, "/view/orders/filter", `{"startDate":"not-a-date"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAgentStatusChangeCommits(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1")}
	agent, router := newTestAgent(t, backend, 10)

	if err := agent.ordersCtrl.Replace(t.Context(), domain.Filter{}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rec := doRequest(t, router, http.MethodPost, "/orders/o1/status", `{"status":"confirm"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	order, ok := agent.ordersCtrl.View().Get("o1")
	if !ok {
		t.Fatal("order missing from view")
	}
	if order.Status != domain.OrderStatusConfirm {
		t.Fatalf("view status = %q, want confirm", order.Status)
	}
}

func TestAgentReturnWithStockFailureReportsWarning(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1"), failAdjust: true}
	agent, router := newTestAgent(t, backend, 10)

	if err := agent.ordersCtrl.Replace(t.Context(), domain.Filter{}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rec := doRequest(t, router, http.MethodPost, "/orders/o1/status", `{"status":"return"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Order        domain.Order `json:"order"`
		StockWarning string       `json:"stockWarning"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusReturn {
		t.Fatalf("order status = %q, want return", resp.Order.Status)
	}
	if resp.StockWarning == "" {
		t.Fatal("expected stockWarning in response")
	}
}

func TestAgentInvalidTransitionRejected(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1")}
	backend.orders[0].Status = domain.OrderStatusReturn
	agent, router := newTestAgent(t, backend, 10)

	if err := agent.ordersCtrl.Replace(t.Context(), domain.Filter{}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rec := doRequest(t, router, http.MethodPost, "/orders/o1/status", `{"status":"confirm"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestAgentStatusChangeUnknownOrder(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1")}
	agent, router := newTestAgent(t, backend, 10)

	if err := agent.ordersCtrl.Replace(t.Context(), domain.Filter{}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rec := doRequest(t, router, http.MethodPost, "/orders/ghost/status", `{"status":"confirm"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAgentDeleteOrderPatchesView(t *testing.T) {
	backend := &fakeBackend{orders: seedOrders("o1", "o2")}
	agent, router := newTestAgent(t, backend, 10)

	if err := agent.ordersCtrl.Replace(t.Context(), domain.Filter{}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rec := doRequest(t, router, http.MethodDelete, "/orders/o1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if _, ok := agent.ordersCtrl.View().Get("o1"); ok {
		t.Fatal("deleted order still present in view")
	}
	if got := agent.ordersCtrl.View().Len(); got != 1 {
		t.Fatalf("view size = %d, want 1", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HTTPAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PageSize != 20 {
		t.Fatalf("page size = %d, want 20", cfg.PageSize)
	}
}
