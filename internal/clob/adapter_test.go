package clob

import "testing"

func TestResolveOrderType(t *testing.T) {
	cases := []struct {
		in   string
		want OrderType
	}{
		{"", OrderTypeGTC},
		{"GTC", OrderTypeGTC},
		{"gtc", OrderTypeGTC},
		{"FOK", OrderTypeFOK},
		{"GTD", OrderTypeGTD},
		{"IOC", OrderTypeFAK},
		{"FAK", OrderTypeFAK},
		{"bogus", OrderTypeGTC},
	}
	for _, tc := range cases {
		if got := resolveOrderType(tc.in); got != tc.want {
			t.Fatalf("resolveOrderType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractOrderID(t *testing.T) {
	if got := extractOrderID(map[string]any{"orderID": "0xabc"}); got != "0xabc" {
		t.Fatalf("got %q", got)
	}
	if got := extractOrderID(map[string]any{"orderId": " 0xdef "}); got != "0xdef" {
		t.Fatalf("got %q", got)
	}
	if got := extractOrderID(map[string]any{"success": true}); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
