//go:build integration

// Package integration runs the full raid pipeline over HTTP against real
// profile, market and record stores.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/graaaaa/raidlog-companion/internal/api"
	"github.com/graaaaa/raidlog-companion/internal/app"
	"github.com/graaaaa/raidlog-companion/internal/items"
	"github.com/graaaaa/raidlog-companion/internal/lifecycle"
	"github.com/graaaaa/raidlog-companion/internal/market"
	"github.com/graaaaa/raidlog-companion/internal/profile"
	"github.com/graaaaa/raidlog-companion/internal/raid"
	"github.com/graaaaa/raidlog-companion/internal/records"
	"github.com/graaaaa/raidlog-companion/internal/valuation"
)

const testProfile = `{
  "info": {"id": "sess1", "username": "alice"},
  "characters": {
    "pmc": {"_id": "pmc1", "aid": 1001, "Info": {"Nickname": "Alice", "Side": "Usec"},
      "Inventory": {"equipment": "eq", "items": [{"_id": "eq", "_tpl": "equipment"}]}},
    "scav": {"_id": "scav1", "aid": 1001, "Info": {"Nickname": "Scav", "Side": "Savage"},
      "Inventory": {"equipment": "eq2", "items": [{"_id": "eq2", "_tpl": "equipment"}]}}
  }
}`

// TestApp holds all dependencies for integration tests.
type TestApp struct {
	Server   *httptest.Server
	Market   *market.Store
	Records  *records.Store
	Hub      *api.Hub
	Archived chan *raid.ArchivedRecord

	cleanup func()
}

type testAppConfig struct {
	authEnabled bool
	username    string
	password    string
}

// TestAppOption configures a test app.
type TestAppOption func(*testAppConfig)

// WithAuth enables basic auth with a failure limiter.
func WithAuth(username, password string) TestAppOption {
	return func(cfg *testAppConfig) {
		cfg.authEnabled = true
		cfg.username = username
		cfg.password = password
	}
}

// NewTestApp wires the profile registry, market database, valuation,
// record store and lifecycle manager behind an httptest server.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()
	cfg := &testAppConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	ctx := context.Background()
	root := t.TempDir()

	profilesDir := filepath.Join(root, "profiles")
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(profilesDir, "sess1.json"), []byte(testProfile), 0o600); err != nil {
		t.Fatal(err)
	}
	registry := profile.NewRegistry(profilesDir)
	if err := registry.Refresh(ctx); err != nil {
		t.Fatalf("refresh profiles: %v", err)
	}

	db, err := market.Open(filepath.Join(root, "market.sqlite"))
	if err != nil {
		t.Fatalf("open market: %v", err)
	}
	if _, err := db.UpsertTemplates(ctx, []items.Template{
		{ID: items.BaseWeapon, Type: items.TypeNode},
		{ID: "ak74", Parent: items.BaseWeapon, Type: items.TypeItem},
		{ID: "bolts", Parent: "barter", Type: items.TypeItem},
	}); err != nil {
		t.Fatalf("upsert templates: %v", err)
	}
	if err := db.ReplaceAllOffers(ctx, []market.Offer{
		{ID: "o1", Tpl: "ak74", Price: 30000, Quantity: 1, SellerType: market.SellerPlayer},
		{ID: "o2", Tpl: "bolts", Price: 2000, Quantity: 2, SellerType: market.SellerPlayer},
	}); err != nil {
		t.Fatalf("replace offers: %v", err)
	}
	catalog, err := db.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	valuer := valuation.New(db, catalog)

	store, err := records.Open(filepath.Join(root, "records"), registry, records.WithCatalog(catalog))
	if err != nil {
		t.Fatalf("open records: %v", err)
	}

	hub := api.NewHub()
	go hub.Run()

	archived := make(chan *raid.ArchivedRecord, 8)
	manager := lifecycle.New(store, registry, valuer,
		lifecycle.WithArchiveHook(hub.OnArchived),
		lifecycle.WithArchiveHook(func(_ string, rec *raid.ArchivedRecord) { archived <- rec }))

	serverOpts := []api.ServerOption{
		api.WithRaidUsecase(&app.RaidService{Lifecycle: manager}),
		api.WithRecordsUsecase(&app.RecordsService{Store: store, Accounts: registry, Valuer: valuer}),
		api.WithPriceUsecase(&app.PriceService{Pricer: valuer}),
		api.WithStatsUsecase(app.NewStatsService(store, registry)),
		api.WithHub(hub),
	}
	if cfg.authEnabled {
		serverOpts = append(serverOpts,
			api.WithBasicAuth(cfg.username, cfg.password),
			api.WithAuthFailureLimiter(api.NewAuthFailureLimiter(api.DefaultAuthFailureLimiterConfig())))
	}
	server := api.NewServer("127.0.0.1:0", app.HealthService{Version: "test", Store: store}, serverOpts...)
	ts := httptest.NewServer(server.Handler())

	a := &TestApp{Server: ts, Market: db, Records: store, Hub: hub, Archived: archived}
	a.cleanup = func() {
		ts.Close()
		hub.Stop()
		db.Close()
	}
	t.Cleanup(a.Close)
	return a
}

// Close releases all resources. It is safe to call more than once.
func (a *TestApp) Close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// URL returns the base URL of the test server.
func (a *TestApp) URL() string {
	return a.Server.URL
}

// character builds a primary character with the given items under its
// equipment container.
func character(list ...items.Item) *profile.Character {
	all := append([]items.Item{{ID: "eq", Tpl: "equipment"}}, list...)
	return &profile.Character{
		ID:        "pmc1",
		Inventory: profile.Inventory{Equipment: "eq", Items: all},
	}
}

func weapon() items.Item {
	return items.Item{ID: "gun", Tpl: "ak74", ParentID: "eq", SlotID: "FirstPrimaryWeapon"}
}

func loot(id string, count int64) items.Item {
	return items.Item{ID: id, Tpl: "bolts", ParentID: "eq", SlotID: "Backpack",
		Upd: &items.Upd{StackObjectsCount: count}}
}

// post sends v as JSON and returns the response; the caller closes it.
func (a *TestApp) post(t *testing.T, path string, v any, auth ...string) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, a.URL()+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// get performs a GET and decodes a 200 JSON body into out when out is non-nil.
func (a *TestApp) get(t *testing.T, path string, out any, auth ...string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.URL()+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}
