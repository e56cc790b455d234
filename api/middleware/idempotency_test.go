package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func newIdempotentRouter(store *memoryStore, hits *int) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(WithUser(req.Context(), 1, enums.RoleCustomer)))
		})
	})
	r.Use(Idempotency(store, nil))
	r.Post("/api/v1/payments/intent", func(w http.ResponseWriter, req *http.Request) {
		*hits++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})
	r.Post("/api/v1/payments/bank-transfers/{transactionID}/proof", func(w http.ResponseWriter, req *http.Request) {
		*hits++
		w.WriteHeader(http.StatusCreated)
	})
	r.Get("/api/v1/orders", func(w http.ResponseWriter, req *http.Request) {
		*hits++
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	hits := 0
	router := newIdempotentRouter(store, &hits)

	body := `{"order_id":1,"method":"stripe"}`
	first := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(body))
	first.Header.Set("Idempotency-Key", "key-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, first)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(body))
	second.Header.Set("Idempotency-Key", "key-1")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, second)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", resp.Code)
	}
	if hits != 1 {
		t.Fatalf("expected handler to run once, ran %d times", hits)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := newMemoryStore()
	hits := 0
	router := newIdempotentRouter(store, &hits)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(`{"order_id":1}`))
	first.Header.Set("Idempotency-Key", "key-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, first)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(`{"order_id":2}`))
	second.Header.Set("Idempotency-Key", "key-1")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, second)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestIdempotencyRequiresHeaderOnGuardedRoutes(t *testing.T) {
	store := newMemoryStore()
	hits := 0
	router := newIdempotentRouter(store, &hits)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIdempotencyGuardsParameterizedRoutes(t *testing.T) {
	store := newMemoryStore()
	hits := 0
	router := newIdempotentRouter(store, &hits)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/bank-transfers/55/proof", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/bank-transfers/55/proof", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "proof-key")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if hits != 1 {
		t.Fatalf("expected one handler hit, got %d", hits)
	}
}

func TestIdempotencySkipsUnlistedRoutes(t *testing.T) {
	store := newMemoryStore()
	hits := 0
	router := newIdempotentRouter(store, &hits)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if hits != 1 {
		t.Fatalf("expected handler hit, got %d", hits)
	}
}
