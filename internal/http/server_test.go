package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensedash/internal/client"
	"expensedash/internal/export"
	"expensedash/internal/middleware/ratelimit"
	"expensedash/internal/store"
)

type backendExpense struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Category  string  `json:"category"`
	CreatedAt string  `json:"created_at"`
}

// fakeBackend is an in-memory expense service speaking the backend's JSON.
type fakeBackend struct {
	mu       sync.Mutex
	expenses []backendExpense
	income   float64
	nextID   int64
	fail     bool
	creates  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		expenses: []backendExpense{{ID: 1, Name: "Coffee", Amount: 4.5, Category: "Food", CreatedAt: "2024-05-03T08:30:00"}},
		income:   3000,
		nextID:   2,
	}
}

func (b *fakeBackend) setFail(fail bool) {
	b.mu.Lock()
	b.fail = fail
	b.mu.Unlock()
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.expenses)
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	find := func(r *http.Request) int {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		for i, e := range b.expenses {
			if e.ID == id {
				return i
			}
		}
		return -1
	}

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]string{"message": "Expense API"})
	})
	mux.HandleFunc("GET /api/expenses", func(w http.ResponseWriter, r *http.Request) {
		reply(w, b.expenses)
	})
	mux.HandleFunc("POST /api/expenses", func(w http.ResponseWriter, r *http.Request) {
		var e backendExpense
		_ = json.NewDecoder(r.Body).Decode(&e)
		e.ID = b.nextID
		e.CreatedAt = "2024-05-10T12:00:00"
		b.nextID++
		b.creates++
		b.expenses = append(b.expenses, e)
		reply(w, e)
	})
	mux.HandleFunc("PUT /api/expenses/{id}", func(w http.ResponseWriter, r *http.Request) {
		i := find(r)
		if i < 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var e backendExpense
		_ = json.NewDecoder(r.Body).Decode(&e)
		e.ID, e.CreatedAt = b.expenses[i].ID, b.expenses[i].CreatedAt
		b.expenses[i] = e
		reply(w, e)
	})
	mux.HandleFunc("DELETE /api/expenses/{id}", func(w http.ResponseWriter, r *http.Request) {
		if i := find(r); i >= 0 {
			b.expenses = append(b.expenses[:i], b.expenses[i+1:]...)
		}
		reply(w, map[string]string{"message": "Expense deleted"})
	})
	mux.HandleFunc("GET /api/monthly-income", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"id": 1, "amount": b.income, "updated_at": nil})
	})
	mux.HandleFunc("PUT /api/monthly-income", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Amount float64 }
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.income = in.Amount
		reply(w, map[string]any{"id": 1, "amount": b.income})
	})
	mux.HandleFunc("GET /api/chart-data", func(w http.ResponseWriter, r *http.Request) {
		totals := map[string]float64{}
		for _, e := range b.expenses {
			totals[e.Category] += e.Amount
		}
		area := []map[string]any{}
		for c, v := range totals {
			area = append(area, map[string]any{"category": c, "value": v})
		}
		reply(w, map[string]any{
			"area_chart": area,
			"bar_chart":  make([]float64, 30),
			"line_chart": make([]float64, 12),
		})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"boom"}`)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

type staticHealth bool

func (h staticHealth) HealthCheck(context.Context) bool { return bool(h) }

func newTestServer(t *testing.T, opts ...func(*Config)) (*Server, *store.Store, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	ts := httptest.NewServer(b.handler())
	t.Cleanup(ts.Close)

	c := client.New(ts.URL, client.WithTimeout(2*time.Second))
	st := store.New(c)
	cfg := Config{
		Addr:      ":0",
		RateLimit: ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg, st, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, st, b
}

func loadedServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	srv, st, b := newTestServer(t)
	require.NoError(t, st.LoadAll(context.Background()))
	return srv, b
}

func do(srv *Server, method, target, form string) *httptest.ResponseRecorder {
	var body io.Reader
	if form != "" {
		body = strings.NewReader(form)
	}
	req := httptest.NewRequest(method, target, body)
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestDashboardPage(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Expense Dashboard")
	assert.Contains(t, body, `hx-get="/ui/charts/bar"`)
	assert.Contains(t, body, `<option value="Healthcare">`)

	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestPartialsBeforeLoad(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/ui/summary", "/ui/expenses", "/ui/charts/line"} {
		rr := do(srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Body.String(), "Loading", path)
	}
}

func TestSummaryAfterLoad(t *testing.T) {
	srv, _ := loadedServer(t)

	body := do(srv, http.MethodGet, "/ui/summary", "").Body.String()
	assert.Contains(t, body, "$3,000.00")
	assert.Contains(t, body, "$4.50")
	assert.Contains(t, body, "$2,995.50")

	body = do(srv, http.MethodGet, "/ui/expenses", "").Body.String()
	assert.Contains(t, body, `id="expense-1"`)
	assert.Contains(t, body, `value="Coffee"`)
	assert.Contains(t, body, "2024-05-03 08:30")
}

func TestCreateExpense(t *testing.T) {
	srv, b := loadedServer(t)

	rr := do(srv, http.MethodPost, "/expenses", "name=Lunch&amount=12.50&category=food")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "Added Lunch ($12.50, Food)")
	trigger := rr.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, `"expense:created":{"id":2}`)
	assert.Contains(t, trigger, `"form:reset"`)
	assert.Equal(t, 2, b.count())

	body := do(srv, http.MethodGet, "/ui/summary", "").Body.String()
	assert.Contains(t, body, "$17.00")
	assert.Contains(t, body, "$2,983.00")
}

func TestCreateExpenseJSON(t *testing.T) {
	srv, b := loadedServer(t)

	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(`{"name":"Taxi","amount":8.2,"category":"Transport"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "Added Taxi ($8.20, Transport)")
	assert.Equal(t, 2, b.count())
}

func TestCreateExpenseValidation(t *testing.T) {
	tests := []struct {
		name     string
		form     string
		wantBody string
	}{
		{"invalid amount", "name=x&amount=abc&category=Food", "Invalid amount"},
		{"zero amount", "name=x&amount=0&category=Food", "Invalid amount"},
		{"missing name", "name=&amount=1.23&category=Food", "Invalid name"},
		{"unknown category", "name=x&amount=1&category=Pets", "Invalid category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, b := loadedServer(t)

			rr := do(srv, http.MethodPost, "/expenses", tt.form)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)

			b.mu.Lock()
			defer b.mu.Unlock()
			assert.Zero(t, b.creates, "invalid drafts must not reach the backend")
		})
	}
}

func TestCreateExpenseBackendFailure(t *testing.T) {
	srv, b := loadedServer(t)
	b.setFail(true)

	rr := do(srv, http.MethodPost, "/expenses", "name=Lunch&amount=12&category=Food")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "please retry")
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"type":"error"`)
}

func TestUpdateExpense(t *testing.T) {
	srv, _ := loadedServer(t)

	rr := do(srv, http.MethodPost, "/expenses/1", "field=amount&value=7")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `id="expense-1"`)
	assert.Contains(t, rr.Body.String(), `value="7.00"`)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"expense:updated"`)

	rr = do(srv, http.MethodPost, "/expenses/1", "field=category&value=unknown")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `<option value="Other" selected>`)

	body := do(srv, http.MethodGet, "/ui/summary", "").Body.String()
	assert.Contains(t, body, "$2,993.00")
}

func TestUpdateExpenseErrors(t *testing.T) {
	srv, _ := loadedServer(t)

	gone := do(srv, http.MethodPost, "/expenses/999", "field=name&value=x")
	assert.Equal(t, http.StatusOK, gone.Code, "unknown ids are a no-op")
	assert.Empty(t, gone.Body.String())
	assert.Empty(t, gone.Header().Get("HX-Trigger"))
	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodPost, "/expenses/abc", "field=name&value=x").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(srv, http.MethodPost, "/expenses/1", "field=colour&value=red").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(srv, http.MethodPost, "/expenses/1", "field=name&value=").Code)
}

func TestDeleteExpense(t *testing.T) {
	srv, b := loadedServer(t)

	rr := do(srv, http.MethodDelete, "/expenses/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"expense:deleted":{"id":1}`)
	assert.Zero(t, b.count())

	body := do(srv, http.MethodGet, "/ui/expenses", "").Body.String()
	assert.Contains(t, body, "No expenses yet")
}

func TestDeleteExpenseBackendFailure(t *testing.T) {
	srv, b := loadedServer(t)
	b.setFail(true)

	assert.Equal(t, http.StatusBadGateway, do(srv, http.MethodDelete, "/expenses/1", "").Code)
	assert.Contains(t, do(srv, http.MethodGet, "/ui/expenses", "").Body.String(), `id="expense-1"`)
}

func TestSetIncome(t *testing.T) {
	srv, b := loadedServer(t)

	rr := do(srv, http.MethodPost, "/income", "amount=2500")
	require.Equal(t, http.StatusOK, rr.Code)
	trigger := rr.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, `"income:updated":{"amount":"2500"}`)
	assert.Contains(t, trigger, `"type":"success"`)
	assert.Contains(t, do(srv, http.MethodGet, "/ui/summary", "").Body.String(), "$2,495.50")

	assert.Equal(t, http.StatusUnprocessableEntity, do(srv, http.MethodPost, "/income", "amount=-5").Code)

	b.setFail(true)
	rr = do(srv, http.MethodPost, "/income", "amount=100")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"type":"warning"`)
	assert.Contains(t, do(srv, http.MethodGet, "/ui/summary", "").Body.String(), "$95.50")
}

func TestCharts(t *testing.T) {
	srv, _ := loadedServer(t)

	rr := do(srv, http.MethodGet, "/ui/charts/area", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `data-chart="area"`)
	assert.Contains(t, rr.Body.String(), "Food")

	// The backend reports no daily totals.
	assert.Contains(t, do(srv, http.MethodGet, "/ui/charts/bar", "").Body.String(), "No data yet")

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/ui/charts/pie", "").Code)
}

func TestReload(t *testing.T) {
	srv, b := loadedServer(t)

	rr := do(srv, http.MethodPost, "/reload", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"dashboard:reloaded"`)

	b.setFail(true)
	rr = do(srv, http.MethodPost, "/reload", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	body := do(srv, http.MethodGet, "/ui/summary", "").Body.String()
	assert.Contains(t, body, "please retry")
	assert.Contains(t, body, "Retry")
}

func TestExport(t *testing.T) {
	srv, _ := loadedServer(t)

	rr := do(srv, http.MethodGet, "/export.xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, export.ContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"), "xlsx is a zip archive")
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"expense_api":"ok"`)

	srv.health = staticHealth(false)
	rr = do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"expense_api":"unreachable"`)
}

func TestMetrics(t *testing.T) {
	srv, _ := loadedServer(t)

	do(srv, http.MethodGet, "/healthz", "")
	body := do(srv, http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, body, "http_requests_total 1")
	assert.Contains(t, body, "expenses_count 1")
	assert.Contains(t, body, "remaining_amount 2995.50")
}

func TestStaticAssets(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
}

func TestMutationsAreRateLimited(t *testing.T) {
	srv, st, _ := newTestServer(t, func(c *Config) {
		c.RateLimit = ratelimit.Config{RequestsPerSecond: 0.01, Burst: 1}
	})
	require.NoError(t, st.LoadAll(context.Background()))

	assert.Equal(t, http.StatusOK, do(srv, http.MethodPost, "/income", "amount=10").Code)

	rr := do(srv, http.MethodPost, "/income", "amount=20")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/ui/summary", "").Code)
}

func TestNewServerRejectsInvalidProxy(t *testing.T) {
	_, err := NewServer(Config{TrustedProxies: []string{"10.0.0.0/99"}}, store.New(nil), staticHealth(true))
	assert.Error(t, err)
}
