package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var kst = time.FixedZone("KST", 9*60*60)

func testClient(baseURL string) *Client {
	return New(Config{
		AccessKey:   "access-key",
		SecretKey:   "secret-key",
		BaseURL:     baseURL,
		Market:      "KRW-BTC",
		MarketAsset: "BTC",
		MaxPages:    5,
		Location:    kst,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func writeRows(t *testing.T, w http.ResponseWriter, rows []orderRow) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		t.Fatalf("encode rows: %v", err)
	}
}

func TestFillsForDate_FiltersAndDerivesPrices(t *testing.T) {
	day := "2026-08-30"
	rows := []orderRow{
		// Limit buy: unit price carried directly.
		{UUID: "u1", Market: "KRW-BTC", Side: "bid", OrdType: "limit",
			Price: "100000000", ExecutedVolume: "0.00001", ExecutedFunds: "1000",
			DoneAt: day + "T10:00:00+09:00"},
		// Market buy: "price" holds the total spend, unit price derived.
		{UUID: "u2", Market: "KRW-BTC", Side: "bid", OrdType: "price",
			Price: "500", ExecutedVolume: "0.000005",
			DoneAt: day + "T11:00:00+09:00"},
		// Sell side: skipped.
		{UUID: "u3", Market: "KRW-BTC", Side: "ask", OrdType: "limit",
			Price: "101000000", ExecutedVolume: "0.00001",
			DoneAt: day + "T12:00:00+09:00"},
		// Wrong asset: skipped.
		{UUID: "u4", Market: "KRW-ETH", Side: "bid", OrdType: "limit",
			Price: "5000000", ExecutedVolume: "0.001",
			DoneAt: day + "T12:30:00+09:00"},
		// Other day: skipped.
		{UUID: "u5", Market: "KRW-BTC", Side: "bid", OrdType: "limit",
			Price: "100000000", ExecutedVolume: "0.00001", ExecutedFunds: "1000",
			DoneAt: "2026-08-29T10:00:00+09:00"},
		// Cancelled before any fill: zero volume, skipped.
		{UUID: "u6", Market: "KRW-BTC", Side: "bid", OrdType: "limit",
			Price: "100000000", ExecutedVolume: "0",
			DoneAt: day + "T13:00:00+09:00"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders/closed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") == "1" {
			writeRows(t, w, rows)
			return
		}
		writeRows(t, w, nil) // no more pages
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	fills, err := c.FillsForDate(context.Background(), time.Date(2026, 8, 30, 0, 0, 0, 0, kst))
	if err != nil {
		t.Fatalf("FillsForDate: %v", err)
	}

	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}

	limit := fills[0]
	if limit.ID != "u1" || limit.Price != 100000000 || limit.Amount != 1000 {
		t.Errorf("limit fill = %+v", limit)
	}
	if limit.Symbol != "BTC" {
		t.Errorf("symbol = %q, want BTC", limit.Symbol)
	}

	market := fills[1]
	if market.ID != "u2" {
		t.Fatalf("second fill = %+v", market)
	}
	if market.Amount != 500 {
		t.Errorf("market-buy amount = %v, want 500 (total spend)", market.Amount)
	}
	if market.Price != 500/0.000005 {
		t.Errorf("market-buy unit price = %v, want %v", market.Price, 500/0.000005)
	}
}

func TestFillsForDate_PagesUntilEmpty(t *testing.T) {
	day := "2026-08-30"
	pagesServed := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		switch r.URL.Query().Get("page") {
		case "1":
			writeRows(t, w, []orderRow{{UUID: "p1", Market: "KRW-BTC", Side: "bid", OrdType: "limit",
				Price: "100000000", ExecutedVolume: "0.00001", DoneAt: day + "T10:00:00+09:00"}})
		case "2":
			writeRows(t, w, []orderRow{{UUID: "p2", Market: "KRW-BTC", Side: "bid", OrdType: "limit",
				Price: "100000000", ExecutedVolume: "0.00001", DoneAt: day + "T11:00:00+09:00"}})
		default:
			writeRows(t, w, nil)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	fills, err := c.FillsForDate(context.Background(), time.Date(2026, 8, 30, 0, 0, 0, 0, kst))
	if err != nil {
		t.Fatalf("FillsForDate: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	if pagesServed != 3 {
		t.Fatalf("pages served = %d, want 3 (two full, one empty)", pagesServed)
	}
}

func TestFillsForDate_FallsBackToLegacyOrdersPath(t *testing.T) {
	day := "2026-08-30"
	var paths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v1/orders/closed" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("page") == "1" {
			writeRows(t, w, []orderRow{{UUID: "legacy", Market: "KRW-BTC", Side: "bid", OrdType: "limit",
				Price: "100000000", ExecutedVolume: "0.00001", DoneAt: day + "T10:00:00+09:00"}})
			return
		}
		writeRows(t, w, nil)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	fills, err := c.FillsForDate(context.Background(), time.Date(2026, 8, 30, 0, 0, 0, 0, kst))
	if err != nil {
		t.Fatalf("FillsForDate: %v", err)
	}
	if len(fills) != 1 || fills[0].ID != "legacy" {
		t.Fatalf("fills = %+v", fills)
	}
	if paths[0] != "/v1/orders/closed" || paths[1] != "/v1/orders" {
		t.Fatalf("paths = %v, want closed then legacy", paths)
	}
}

func TestFillsForDate_SignedRequest(t *testing.T) {
	var auth string
	var rawQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		rawQuery = r.URL.RawQuery
		writeRows(t, w, nil)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, err := c.FillsForDate(context.Background(), time.Date(2026, 8, 30, 0, 0, 0, 0, kst)); err != nil {
		t.Fatalf("FillsForDate: %v", err)
	}

	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("authorization = %q, want Bearer token", auth)
	}

	token, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(tok *jwt.Token) (any, error) {
		if tok.Method.Alg() != "HS512" {
			t.Fatalf("alg = %s, want HS512", tok.Method.Alg())
		}
		return []byte("secret-key"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token invalid: %v", err)
	}

	claims := token.Claims.(jwt.MapClaims)
	if claims["access_key"] != "access-key" {
		t.Errorf("access_key claim = %v", claims["access_key"])
	}
	if claims["query_hash_alg"] != "SHA512" {
		t.Errorf("query_hash_alg = %v", claims["query_hash_alg"])
	}
	if claims["nonce"] == "" {
		t.Error("nonce claim missing")
	}

	// The hash covers the decoded form of the exact query sent.
	decoded, err := url.QueryUnescape(rawQuery)
	if err != nil {
		t.Fatalf("unescape query: %v", err)
	}
	sum := sha512.Sum512([]byte(decoded))
	if claims["query_hash"] != hex.EncodeToString(sum[:]) {
		t.Errorf("query_hash does not match the sent query %q", rawQuery)
	}

	q, _ := url.ParseQuery(rawQuery)
	if got := q["states[]"]; len(got) != 2 || got[0] != "done" || got[1] != "cancel" {
		t.Errorf("states[] = %v, want [done cancel]", got)
	}
	if q.Get("limit") != "100" || q.Get("order_by") != "desc" {
		t.Errorf("query = %v", q)
	}
}

func TestFillsForDate_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, err := c.FillsForDate(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestMarketMatches(t *testing.T) {
	c := testClient("http://unused")

	for _, tc := range []struct {
		market string
		want   bool
	}{
		{"KRW-BTC", true},
		{"USDT-BTC", true}, // unexpected pair, tracked asset
		{"KRW-ETH", false},
		{"BTC", true}, // no pair separator, matches the asset itself
	} {
		if got := c.marketMatches(tc.market); got != tc.want {
			t.Errorf("marketMatches(%q) = %v, want %v", tc.market, got, tc.want)
		}
	}
}
