package syncserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/accesskey"
	"github.com/fuusan091240-hub/flow-schedule/internal/model"
	"github.com/fuusan091240-hub/flow-schedule/internal/snapshot"
	"github.com/fuusan091240-hub/flow-schedule/internal/storage"
	"github.com/fuusan091240-hub/flow-schedule/internal/transport"
)

func setupServer(t *testing.T) (*httptest.Server, *SnapshotStore) {
	t.Helper()
	store, err := OpenSnapshotStore(storage.DriverCGO, filepath.Join(t.TempDir(), "server-test.db"))
	if err != nil {
		t.Fatalf("open snapshot store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	srv := httptest.NewServer(New(store, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func testKey(t *testing.T, secret string) accesskey.Key {
	t.Helper()
	key, err := accesskey.Derive(secret)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return key
}

func TestTransportRoundTripThroughServer(t *testing.T) {
	srv, _ := setupServer(t)
	tr, err := transport.NewHTTPTransport(srv.URL + ExecPath)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	ctx := context.Background()
	key := testKey(t, "secret-a")

	env, err := tr.Fetch(ctx, key)
	if err != nil || env != nil {
		t.Fatalf("expected no snapshot before first save, got %#v err=%v", env, err)
	}

	st := model.DefaultState(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	st.MoodLevel = 4
	sent, err := snapshot.Encode(st, time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := tr.Send(ctx, key, sent); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := tr.Fetch(ctx, key)
	if err != nil || got == nil {
		t.Fatalf("fetch after save: %#v err=%v", got, err)
	}
	if got.SavedAt != sent.SavedAt {
		t.Fatalf("savedAt mismatch: got=%s want=%s", got.SavedAt, sent.SavedAt)
	}
	if decoded := snapshot.Decode(*got, time.Now()); decoded.MoodLevel != 4 {
		t.Fatalf("expected mood 4 after round trip, got %d", decoded.MoodLevel)
	}

	other, err := tr.Fetch(ctx, testKey(t, "secret-b"))
	if err != nil || other != nil {
		t.Fatalf("snapshots must be isolated per key, got %#v err=%v", other, err)
	}
}

func TestSnapshotStoreKeepsNewest(t *testing.T) {
	_, store := setupServer(t)
	ctx := context.Background()
	key := testKey(t, "secret").String()

	newer := snapshot.Envelope{Version: 1, SavedAt: "2025-01-02T00:00:00.000Z", Data: json.RawMessage(`{"mood":5}`)}
	older := snapshot.Envelope{Version: 1, SavedAt: "2025-01-01T00:00:00.000Z", Data: json.RawMessage(`{"mood":0}`)}

	if ok, err := store.Put(ctx, key, newer); err != nil || !ok {
		t.Fatalf("put newer: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Put(ctx, key, older); err != nil || ok {
		t.Fatalf("older save must not replace newer, ok=%v err=%v", ok, err)
	}
	if ok, err := store.Put(ctx, key, newer); err != nil || ok {
		t.Fatalf("same savedAt must not replace, ok=%v err=%v", ok, err)
	}
	got, err := store.Get(ctx, key)
	if err != nil || got == nil || got.SavedAt != newer.SavedAt || string(got.Data) != `{"mood":5}` {
		t.Fatalf("unexpected stored snapshot: %#v err=%v", got, err)
	}
	if _, err := store.Put(ctx, key, snapshot.Envelope{SavedAt: "yesterday"}); err == nil {
		t.Fatal("expected error for unparseable savedAt")
	}
}

func TestSaveRejectsBadRequests(t *testing.T) {
	srv, store := setupServer(t)
	post := func(body string) int {
		resp, err := http.Post(srv.URL+ExecPath+"?action=save", "text/plain", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("not json"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", code)
	}
	if code := post(`{"version":1,"savedAt":"2025-01-01T00:00:00Z","data":{},"accessKey":"short"}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad access key, got %d", code)
	}
	if code := post(`{"version":1,"savedAt":"nope","data":{},"accessKey":"` + testKey(t, "k").String() + `"}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad savedAt, got %d", code)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("rejected saves must not be stored, count=%d", n)
	}
}

func TestLoadValidatesQuery(t *testing.T) {
	srv, _ := setupServer(t)
	get := func(query string) int {
		resp, err := http.Get(srv.URL + ExecPath + "?" + query)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := get("action=load&accessKey=abc"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad access key, got %d", code)
	}
	if code := get("action=load&accessKey=" + testKey(t, "k").String() + "&callback=%3Cscript%3E"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsafe callback, got %d", code)
	}
	if code := get("action=unknown"); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", code)
	}
}

func TestHealthReportsSnapshotCount(t *testing.T) {
	srv, _ := setupServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %#v", body)
	}
}
