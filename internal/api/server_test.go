package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/app"
	"github.com/graaaaa/raidlog-companion/internal/lifecycle"
	"github.com/graaaaa/raidlog-companion/internal/profile"
	"github.com/graaaaa/raidlog-companion/internal/raid"
	"github.com/graaaaa/raidlog-companion/internal/records"
)

// stubRaids is a test double for app.RaidUsecase.
type stubRaids struct {
	gotStart lifecycle.StartRequest
	gotEnd   lifecycle.EndRequest
	err      error
}

func (s *stubRaids) Start(ctx context.Context, req lifecycle.StartRequest) (*raid.InFlightRecord, error) {
	s.gotStart = req
	if s.err != nil {
		return nil, s.err
	}
	return &raid.InFlightRecord{MatchID: req.MatchID, PlayerID: req.PlayerID, Side: raid.SidePMC,
		Totals: raid.Totals{EntryValue: 1000}}, nil
}

func (s *stubRaids) End(ctx context.Context, req lifecycle.EndRequest) (*raid.ArchivedRecord, error) {
	s.gotEnd = req
	if s.err != nil {
		return nil, s.err
	}
	return &raid.ArchivedRecord{MatchID: req.MatchID, Result: raid.Result{Outcome: raid.OutcomeSurvived}}, nil
}

// stubRecords is a test double for app.RecordsUsecase.
type stubRecords struct {
	gotID  string
	gotReq records.PageRequest
	recs   []*raid.ArchivedRecord
	err    error
}

func (s *stubRecords) List(ctx context.Context, id string) ([]*raid.ArchivedRecord, error) {
	s.gotID = id
	return s.recs, nil
}

func (s *stubRecords) ByIndex(ctx context.Context, id string, index int) (*raid.ArchivedRecord, error) {
	s.gotID = id
	if index < 0 {
		index += len(s.recs)
	}
	if index < 0 || index >= len(s.recs) {
		return nil, app.ErrNotFound
	}
	return s.recs[index], nil
}

func (s *stubRecords) ByMatchID(ctx context.Context, id, matchID string) (records.Entry, error) {
	for i, r := range s.recs {
		if r.MatchID == matchID {
			return records.Entry{Index: i, Record: r}, nil
		}
	}
	return records.Entry{}, app.ErrNotFound
}

func (s *stubRecords) Page(ctx context.Context, id string, req records.PageRequest) (records.Page, error) {
	s.gotID = id
	s.gotReq = req
	if s.err != nil {
		return records.Page{}, s.err
	}
	return records.Page{Page: 1, PageSize: 20, Total: len(s.recs)}, nil
}

func (s *stubRecords) BuybackQuote(ctx context.Context, id string, index int) (app.BuybackQuote, error) {
	if index != 0 {
		return app.BuybackQuote{}, app.ErrNotFound
	}
	return app.BuybackQuote{MatchID: s.recs[0].MatchID, Total: 4200}, nil
}

type stubStats struct{}

func (stubStats) AccountStats(ctx context.Context, id string) (*app.StatsResult, error) {
	return &app.StatsResult{Account: id, Raids: 3}, nil
}

type stubPrices struct{}

func (stubPrices) PriceOf(ctx context.Context, tpl string) app.PriceResult {
	return app.PriceResult{Tpl: tpl, Price: 1234}
}

func newTestServer(raids *stubRaids, recs *stubRecords, opts ...ServerOption) *Server {
	all := append([]ServerOption{
		WithRaidUsecase(raids),
		WithRecordsUsecase(recs),
		WithStatsUsecase(stubStats{}),
		WithPriceUsecase(stubPrices{}),
	}, opts...)
	return NewServer(":0", app.HealthService{Version: "test-version"}, all...)
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(":8080", app.HealthService{Version: "test-version"})

	rec := serve(server, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}

	var resp app.HealthResult
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Version != "test-version" {
		t.Errorf("resp = %+v", resp)
	}

	if rec := serve(server, http.MethodPost, "/api/v1/health", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST health = %d, want 405", rec.Code)
	}
}

func TestRaidStart(t *testing.T) {
	raids := &stubRaids{}
	server := newTestServer(raids, &stubRecords{})

	rec := serve(server, http.MethodPost, "/api/v1/raids/start",
		`{"playerId":"pmc1","matchId":"m1","character":{"_id":"pmc1","Inventory":{"equipment":"eq"}}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if raids.gotStart.PlayerID != "pmc1" || raids.gotStart.Character == nil {
		t.Errorf("request = %+v", raids.gotStart)
	}
	var resp raidStartResponse
	decodeBody(t, rec, &resp)
	if resp.MatchID != "m1" || resp.EntryValue != 1000 {
		t.Errorf("resp = %+v", resp)
	}

	if rec := serve(server, http.MethodPost, "/api/v1/raids/start", "{not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", rec.Code)
	}
}

func TestRaidEnd(t *testing.T) {
	raids := &stubRaids{}
	server := newTestServer(raids, &stubRecords{})

	rec := serve(server, http.MethodPost, "/api/v1/raids/end",
		`{"matchId":"m1","outcome":"Survived","exitName":"Gate 3","playTimeSeconds":900}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if raids.gotEnd.ExitName != "Gate 3" || raids.gotEnd.PlayTimeSeconds != 900 {
		t.Errorf("request = %+v", raids.gotEnd)
	}
	var resp raid.ArchivedRecord
	decodeBody(t, rec, &resp)
	if resp.MatchID != "m1" || resp.Result.Outcome != raid.OutcomeSurvived {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRaidErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: outcome", lifecycle.ErrInvalidRequest), http.StatusBadRequest},
		{lifecycle.ErrUnknownPlayer, http.StatusNotFound},
		{lifecycle.ErrNoPendingRecord, http.StatusConflict},
		{records.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			server := newTestServer(&stubRaids{err: tt.err}, &stubRecords{})
			rec := serve(server, http.MethodPost, "/api/v1/raids/end", `{"matchId":"m1"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var resp errorResponse
			decodeBody(t, rec, &resp)
			if resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestRecordsEndpoints(t *testing.T) {
	recs := &stubRecords{recs: []*raid.ArchivedRecord{{MatchID: "m1"}, {MatchID: "m2"}}}
	server := newTestServer(&stubRaids{}, recs)

	t.Run("page with filter", func(t *testing.T) {
		rec := serve(server, http.MethodGet,
			"/api/v1/accounts/acc1/records?page=2&page_size=5&side=savage&outcome=killed&exit=gate&since=2026-01-01T00:00:00Z", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		want := records.PageRequest{Page: 2, PageSize: 5, Filter: records.Filter{
			Side: raid.SideSavage, Outcome: raid.OutcomeKilled, Exit: "gate",
			Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}}
		if recs.gotID != "acc1" || !recs.gotReq.Filter.Since.Equal(want.Filter.Since) ||
			recs.gotReq.Page != want.Page || recs.gotReq.PageSize != want.PageSize ||
			recs.gotReq.Filter.Side != want.Filter.Side || recs.gotReq.Filter.Outcome != want.Filter.Outcome ||
			recs.gotReq.Filter.Exit != want.Filter.Exit {
			t.Errorf("request = %+v", recs.gotReq)
		}
		var page records.Page
		decodeBody(t, rec, &page)
		if page.Items == nil || page.Total != 2 {
			t.Errorf("page = %+v", page)
		}
	})

	for _, q := range []string{"page=0", "page_size=x", "side=boss", "outcome=won", "until=yesterday"} {
		t.Run("invalid "+q, func(t *testing.T) {
			if rec := serve(server, http.MethodGet, "/api/v1/accounts/acc1/records?"+q, ""); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/accounts/acc1/records/0", http.StatusOK},
		{"/api/v1/accounts/acc1/records/-1", http.StatusOK},
		{"/api/v1/accounts/acc1/records/7", http.StatusNotFound},
		{"/api/v1/accounts/acc1/records/last", http.StatusBadRequest},
		{"/api/v1/accounts/acc1/records/0/buyback", http.StatusOK},
		{"/api/v1/accounts/acc1/records/1/buyback", http.StatusNotFound},
		{"/api/v1/accounts/acc1/matches/m2", http.StatusOK},
		{"/api/v1/accounts/acc1/matches/zzz", http.StatusNotFound},
		{"/api/v1/accounts/acc1/stats", http.StatusOK},
		{"/api/v1/prices/ak74", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := serve(server, http.MethodGet, tt.path, ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	rec := serve(server, http.MethodGet, "/api/v1/accounts/acc1/records/-1", "")
	var last raid.ArchivedRecord
	decodeBody(t, rec, &last)
	if last.MatchID != "m2" {
		t.Errorf("records/-1 = %s, want m2", last.MatchID)
	}

	recs.err = fmt.Errorf("%w: page=-1", records.ErrInvalidPage)
	if rec := serve(server, http.MethodGet, "/api/v1/accounts/acc1/records", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("ErrInvalidPage = %d, want 400", rec.Code)
	}
}

// newRecordStack serves a real record store for one profile, sess1, with
// a single archived raid. The record directory sits below root.
func newRecordStack(t *testing.T, root string) *Server {
	t.Helper()
	ctx := context.Background()

	profiles := filepath.Join(root, "profiles")
	if err := os.MkdirAll(profiles, 0o755); err != nil {
		t.Fatal(err)
	}
	profileJSON := `{"info":{"id":"sess1"},"characters":{"pmc":{"_id":"pmc1"}}}`
	if err := os.WriteFile(filepath.Join(profiles, "sess1.json"), []byte(profileJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	registry := profile.NewRegistry(profiles)
	if err := registry.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	store, err := records.Open(filepath.Join(root, "records"), registry)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(ctx, "sess1", func(h *records.History) (*records.History, error) {
		return h.WithArchived(&raid.ArchivedRecord{MatchID: "m1", Result: raid.Result{Outcome: raid.OutcomeSurvived}}), nil
	}); err != nil {
		t.Fatal(err)
	}

	return NewServer(":0", app.HealthService{Version: "test-version"},
		WithRecordsUsecase(&app.RecordsService{Store: store, Accounts: registry}),
		WithStatsUsecase(app.NewStatsService(store, registry)),
		WithReloader(&app.MaintenanceService{Store: store, Accounts: registry}))
}

func TestRecordsEndpoints_UnknownAccount(t *testing.T) {
	root := t.TempDir()
	server := newRecordStack(t, root)

	victim := filepath.Join(root, "victim.json")
	if err := os.WriteFile(victim, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{
		"/api/v1/accounts/..%2Fvictim/records",
		"/api/v1/accounts/..%2Fvictim/records/0",
		"/api/v1/accounts/..%2Fvictim/matches/m1",
		"/api/v1/accounts/..%2Fvictim/stats",
		"/api/v1/accounts/stranger/records",
		"/api/v1/accounts/stranger/stats",
	} {
		if rec := serve(server, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}

	if _, err := os.Stat(victim); err != nil {
		t.Errorf("file outside the record directory was moved: %v", err)
	}
	if _, err := os.Stat(victim + ".err"); !os.IsNotExist(err) {
		t.Errorf("unexpected backup next to the record directory: %v", err)
	}

	for _, path := range []string{"/api/v1/accounts/pmc1/records", "/api/v1/accounts/sess1/stats"} {
		if rec := serve(server, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestReloadEndpoint(t *testing.T) {
	root := t.TempDir()
	server := newRecordStack(t, root)

	// A history file replaced on disk is only seen after a reload.
	data, err := os.ReadFile(filepath.Join(root, "records", "sess1.json"))
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(string(data), `"m1"`, `"m1-fixed"`, 1)
	if err := os.WriteFile(filepath.Join(root, "records", "sess1.json"), []byte(edited), 0o600); err != nil {
		t.Fatal(err)
	}

	if rec := serve(server, http.MethodGet, "/api/v1/accounts/sess1/matches/m1-fixed", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("before reload: status = %d, want 404", rec.Code)
	}
	rec := serve(server, http.MethodPost, "/api/v1/accounts/pmc1/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload: status = %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["account"] != "sess1" {
		t.Errorf("reload body = %v", body)
	}
	if rec := serve(server, http.MethodGet, "/api/v1/accounts/sess1/matches/m1-fixed", ""); rec.Code != http.StatusOK {
		t.Errorf("after reload: status = %d, want 200", rec.Code)
	}

	if rec := serve(server, http.MethodPost, "/api/v1/accounts/..%2Fvictim/reload", ""); rec.Code != http.StatusNotFound {
		t.Errorf("reload of unknown account: status = %d, want 404", rec.Code)
	}
}

func TestRecordsEndpoints_PagePastEnd(t *testing.T) {
	server := newRecordStack(t, t.TempDir())

	rec := serve(server, http.MethodGet, "/api/v1/accounts/sess1/records?page=184467440737095517&page_size=100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var page records.Page
	decodeBody(t, rec, &page)
	if page.Total != 1 || len(page.Items) != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestAuthRequired(t *testing.T) {
	server := newTestServer(&stubRaids{}, &stubRecords{}, WithBasicAuth("admin", "secret"))

	if rec := serve(server, http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should stay open, got %d", rec.Code)
	}
	for _, path := range []string{"/api/v1/accounts/a/records", "/api/v1/accounts/a/stats", "/api/v1/prices/x"} {
		if rec := serve(server, http.MethodGet, path, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without auth = %d, want 401", path, rec.Code)
		}
	}
	if rec := serve(server, http.MethodPost, "/api/v1/raids/start", "{}"); rec.Code != http.StatusUnauthorized {
		t.Errorf("raid start without auth = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prices/x", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with auth = %d, want 200", rec.Code)
	}
}

func TestStream(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := NewServer(":0", app.HealthService{}, WithHub(hub))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}
	reader.ReadString('\n')

	hub.OnArchived("acc1", &raid.ArchivedRecord{MatchID: "m9", Result: raid.Result{Outcome: raid.OutcomeKilled}})

	var lines []string
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" && line != ":" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "id: 1" || lines[1] != "event: "+eventRaidArchived {
		t.Errorf("event header = %q", lines[:2])
	}
	var s RaidSummary
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &s); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if s.MatchID != "m9" || s.Account != "acc1" || s.Outcome != raid.OutcomeKilled {
		t.Errorf("summary = %+v", s)
	}
}
