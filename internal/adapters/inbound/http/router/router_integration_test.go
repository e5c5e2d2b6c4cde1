package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depositwatch/internal/adapters/inbound/http/controllers"
	"depositwatch/internal/adapters/outbound/chain"
	"depositwatch/internal/adapters/outbound/docs"
	badgerstore "depositwatch/internal/adapters/outbound/persistence/badger"
	"depositwatch/internal/application/use_cases"
	valueobjects "depositwatch/internal/domain/value_objects"
	"depositwatch/internal/infrastructure/metrics"
	"depositwatch/internal/infrastructure/walletkeys"

	"github.com/rs/zerolog"
)

const (
	testMnemonic      = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testSharedAddress = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
)

func TestRouterHealthAndSwaggerRoutes(t *testing.T) {
	mux := newTestRouter(t, writeTempOpenAPISpec(t))

	t.Run("healthz returns 200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Fatalf("expected body to contain status ok, got %s", rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"chains":["eth","xrp"]`) {
			t.Fatalf("expected registered chains in body, got %s", rec.Body.String())
		}
	})

	t.Run("swagger root redirects to index", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/swagger", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("expected status %d, got %d", http.StatusTemporaryRedirect, rec.Code)
		}
		if location := rec.Header().Get("Location"); location != "/swagger/index.html" {
			t.Fatalf("expected redirect location /swagger/index.html, got %q", location)
		}
	})

	t.Run("swagger UI index is served", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if contentType := rec.Header().Get("Content-Type"); !strings.Contains(contentType, "text/html") {
			t.Fatalf("expected text/html content type, got %q", contentType)
		}
	})

	t.Run("openapi spec is served with version 3.0.3", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/swagger/openapi.yaml", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "openapi: 3.0.3") {
			t.Fatalf("expected openapi version 3.0.3 in body, got %s", rec.Body.String())
		}
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
			t.Fatalf("expected prometheus exposition, got %d", rec.Code)
		}
	})
}

func TestRouterDepositAddressLifecycle(t *testing.T) {
	mux := newTestRouter(t, writeTempOpenAPISpec(t))

	lookup := httptest.NewRecorder()
	mux.ServeHTTP(lookup, httptest.NewRequest(http.MethodGet, "/v1/users/alice/deposit-addresses/eth", nil))
	if lookup.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before registration, got %d", lookup.Code)
	}

	first := postDepositAddress(mux, `{"user_id":"alice","chain":"eth"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", first.Code, first.Body.String())
	}
	second := postDepositAddress(mux, `{"user_id":"alice","chain":"ethereum"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 for existing address, got %d body=%s", second.Code, second.Body.String())
	}

	var created, existing map[string]any
	_ = json.Unmarshal(first.Body.Bytes(), &created)
	_ = json.Unmarshal(second.Body.Bytes(), &existing)
	if !strings.EqualFold(created["address"].(string), "0x7840bdf042f7ac9d6382e643c3b78b746233dbad") {
		t.Fatalf("unexpected derived address %v", created["address"])
	}
	if created["address"] != existing["address"] || created["derivation_index"] != float64(735577801) {
		t.Fatalf("expected stable address, got %v and %v", created, existing)
	}

	lookup = httptest.NewRecorder()
	mux.ServeHTTP(lookup, httptest.NewRequest(http.MethodGet, "/v1/users/alice/deposit-addresses/eth", nil))
	if lookup.Code != http.StatusOK {
		t.Fatalf("expected 200 after registration, got %d", lookup.Code)
	}

	shared := postDepositAddress(mux, `{"user_id":"bob","chain":"xrp"}`)
	if shared.Code != http.StatusCreated {
		t.Fatalf("expected 201 for xrp, got %d body=%s", shared.Code, shared.Body.String())
	}
	if !strings.Contains(shared.Body.String(), `"deposit_uri":"`+testSharedAddress+`?memo=2176202712"`) {
		t.Fatalf("expected memo deposit uri, got %s", shared.Body.String())
	}

	unsupported := postDepositAddress(mux, `{"user_id":"alice","chain":"sol"}`)
	if unsupported.Code != http.StatusBadRequest || !strings.Contains(unsupported.Body.String(), `"unsupported_chain"`) {
		t.Fatalf("expected unsupported chain for unregistered adapter, got %d %s", unsupported.Code, unsupported.Body.String())
	}
}

func TestRouterListDepositsForUnknownUser(t *testing.T) {
	mux := newTestRouter(t, writeTempOpenAPISpec(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/carol/deposits", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"deposits":[]`) {
		t.Fatalf("expected empty history, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouterHealthzRejectsNonGET(t *testing.T) {
	mux := newTestRouter(t, writeTempOpenAPISpec(t))

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected non-200 status for POST /healthz, got %d", rec.Code)
	}
}

func postDepositAddress(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/deposit-addresses", bytes.NewBufferString(body)))
	return rec
}

func newTestRouter(t *testing.T, openAPISpecPath string) *http.ServeMux {
	t.Helper()
	logger := zerolog.Nop()

	store, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	secret, keyErr := walletkeys.LoadMasterSecret(testMnemonic, "")
	if keyErr != nil {
		t.Fatalf("load master secret: %+v", keyErr)
	}
	engine, keyErr := walletkeys.NewEngine(secret, walletkeys.EngineConfig{XRPSharedAddress: testSharedAddress})
	if keyErr != nil {
		t.Fatalf("new engine: %+v", keyErr)
	}
	registry, appErr := chain.NewRegistry(
		chain.NewAdapter(valueobjects.ChainETH, engine, chain.Sources{}),
		chain.NewAdapter(valueobjects.ChainXRP, engine, chain.Sources{SharedAddress: testSharedAddress}),
	)
	if appErr != nil {
		t.Fatalf("new registry: %+v", appErr)
	}

	addresses := badgerstore.NewDepositAddressRepository(store, logger)
	ledger := badgerstore.NewDepositLedgerRepository(store)

	healthUseCase := use_cases.NewGetHealthUseCase("badger", registry)
	openAPIUseCase := use_cases.NewGetOpenAPISpecUseCase(docs.NewFileOpenAPISpecReadModel(openAPISpecPath))
	addressUseCase := use_cases.NewGetOrCreateDepositAddressUseCase(registry, addresses, nil)
	depositsUseCase := use_cases.NewListUserDepositsUseCase(ledger)

	return New(Dependencies{
		HealthController:           controllers.NewHealthController(healthUseCase, logger),
		SwaggerController:          controllers.NewSwaggerController(openAPIUseCase, logger),
		DepositAddressesController: controllers.NewDepositAddressesController(addressUseCase, logger),
		DepositsController:         controllers.NewDepositsController(depositsUseCase, logger),
		Metrics:                    metrics.NewScanMetrics().Handler(),
	})
}

func writeTempOpenAPISpec(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "openapi.yaml")

	content := []byte("openapi: 3.0.3\ninfo:\n  title: test\n  version: 1.0.0\npaths:\n  /healthz:\n    get:\n      responses:\n        '200':\n          description: ok\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write temp openapi file: %v", err)
	}

	return path
}
