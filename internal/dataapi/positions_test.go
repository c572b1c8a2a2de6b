package dataapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func positionsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestTokenPosition(t *testing.T) {
	srv := positionsServer(t, `[
  {"asset":"111","size":25.5,"avgPrice":0.42,"conditionId":"0xa"},
  {"asset":"222","size":10,"avgPrice":0.6,"conditionId":"0xa"}
]`)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	size, avg, err := c.TokenPosition(context.Background(), "0xwallet", "111")
	if err != nil {
		t.Fatalf("TokenPosition: %v", err)
	}
	if size != 25.5 || avg != 0.42 {
		t.Fatalf("size=%v avg=%v", size, avg)
	}

	size, avg, err = c.TokenPosition(context.Background(), "0xwallet", "999")
	if err != nil {
		t.Fatalf("TokenPosition missing: %v", err)
	}
	if size != 0 || avg != 0 {
		t.Fatalf("missing token should report zero, got size=%v avg=%v", size, avg)
	}
}

func TestRedeemablePositionsFilterByCondition(t *testing.T) {
	srv := positionsServer(t, `[
  {"asset":"111","size":5,"conditionId":"0xAA","redeemable":true},
  {"asset":"222","size":7,"conditionId":"0xbb","redeemable":true}
]`)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := c.RedeemablePositions(context.Background(), "0xwallet", "0xaa")
	if err != nil {
		t.Fatalf("RedeemablePositions: %v", err)
	}
	if len(got) != 1 || got[0].Asset != "111" {
		t.Fatalf("unexpected filter result: %#v", got)
	}

	all, err := c.RedeemablePositions(context.Background(), "0xwallet", "")
	if err != nil {
		t.Fatalf("RedeemablePositions all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(all))
	}
}
