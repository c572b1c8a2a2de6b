package gamma

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSlugFromSource(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"btc-hits-100k", "btc-hits-100k"},
		{"https://polymarket.com/market/btc-hits-100k", "btc-hits-100k"},
		{"https://polymarket.com/event/crypto-2026/btc-hits-100k?tid=1", "btc-hits-100k"},
		{"  https://polymarket.com/market/btc-hits-100k/  ", "btc-hits-100k"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SlugFromSource(tc.in); got != tc.want {
			t.Fatalf("SlugFromSource(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTokenIDPair(t *testing.T) {
	yes, no, ok := parseTokenIDPair("12345, 67890")
	if !ok || yes != "12345" || no != "67890" {
		t.Fatalf("literal pair not recognized: %q %q %v", yes, no, ok)
	}
	if _, _, ok := parseTokenIDPair("btc-hits-100k"); ok {
		t.Fatalf("slug must not parse as token pair")
	}
	if _, _, ok := parseTokenIDPair("123,abc"); ok {
		t.Fatalf("non-numeric id must not parse")
	}
}

func TestResolveSourceDirectMarketLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/slug/btc-hits-100k" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "slug": "btc-hits-100k",
  "question": "Will BTC hit $100k?",
  "conditionId": "0xdead",
  "endDate": "2026-12-31T12:00:00Z",
  "closed": false,
  "outcomes": "[\"Yes\",\"No\"]",
  "clobTokenIds": "[\"111\",\"222\"]"
}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.ResolveSource(ctx, "https://polymarket.com/market/btc-hits-100k")
	if err != nil {
		t.Fatalf("ResolveSource: %v", err)
	}
	if res.YesTokenID() != "111" || res.NoTokenID() != "222" {
		t.Fatalf("unexpected token ids: %#v", res.TokenIDs)
	}
	if res.Question != "Will BTC hit $100k?" {
		t.Fatalf("unexpected question: %q", res.Question)
	}
	want := time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC)
	if !res.EndTime.Equal(want) {
		t.Fatalf("unexpected end time: %v", res.EndTime)
	}
	if res.Closed {
		t.Fatalf("market should not be closed")
	}
}

func TestResolveSourceFallsBackToEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/slug/x":
			http.NotFound(w, r)
		case "/events":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"slug":"x","markets":[{"slug":"x","outcomes":["Yes","No"],"clobTokenIds":["10","20"]}]}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.ResolveSource(ctx, "x")
	if err != nil {
		t.Fatalf("ResolveSource: %v", err)
	}
	if res.YesTokenID() != "10" || res.NoTokenID() != "20" {
		t.Fatalf("unexpected token ids: %#v", res.TokenIDs)
	}
}

func TestResolveSourceManualIDs(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	res, err := c.ResolveSource(context.Background(), "111,222")
	if err != nil {
		t.Fatalf("ResolveSource: %v", err)
	}
	if res.YesTokenID() != "111" || res.NoTokenID() != "222" {
		t.Fatalf("unexpected token ids: %#v", res.TokenIDs)
	}
}

func TestParseEndTimeShapes(t *testing.T) {
	if got := parseEndTime("2026-03-01"); got.IsZero() {
		t.Fatalf("date-only end time should parse")
	}
	if got := parseEndTime("", "nonsense"); !got.IsZero() {
		t.Fatalf("garbage should yield zero time, got %v", got)
	}
}
