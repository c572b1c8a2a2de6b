package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"
)

// SlugFromSource extracts a market slug from a polymarket.com URL or
// returns the input unchanged when it already looks like a slug.
func SlugFromSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return source
	}
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// /market/<slug> and /event/<event-slug>/<market-slug> both keep the
	// market slug as the last segment.
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// parseTokenIDPair recognizes a "YES_ID,NO_ID" literal of two numeric ids.
func parseTokenIDPair(source string) (string, string, bool) {
	parts := strings.Split(source, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	yes := strings.TrimSpace(parts[0])
	no := strings.TrimSpace(parts[1])
	if yes == "" || no == "" {
		return "", "", false
	}
	for _, s := range []string{yes, no} {
		for _, r := range s {
			if !unicode.IsDigit(r) {
				return "", "", false
			}
		}
	}
	return yes, no, true
}

// FetchMarketBySlug loads one market's details from /markets/slug/<slug>.
func (c *Client) FetchMarketBySlug(ctx context.Context, marketSlug string) (ResolvedMarket, error) {
	if c == nil {
		return ResolvedMarket{}, fmt.Errorf("gamma client nil")
	}
	marketSlug = strings.TrimSpace(marketSlug)
	if marketSlug == "" {
		return ResolvedMarket{}, fmt.Errorf("market slug required")
	}

	endpoint := c.host + "/markets/slug/" + url.PathEscape(marketSlug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ResolvedMarket{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ResolvedMarket{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ResolvedMarket{}, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return ResolvedMarket{}, fmt.Errorf("gamma %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	var m market
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return ResolvedMarket{}, fmt.Errorf("gamma decode: %w", err)
	}

	res := m.resolved()
	if len(res.TokenIDs) != 2 {
		return ResolvedMarket{}, fmt.Errorf("gamma: expected 2 clobTokenIds for %q, got %d", marketSlug, len(res.TokenIDs))
	}
	return res, nil
}

var errNotFound = fmt.Errorf("gamma: market not found")

// ResolveSource turns any accepted market reference into a resolved
// market. It handles a literal "YES_ID,NO_ID" token pair, a market URL,
// or a bare slug, falling back to the events endpoint when the direct
// market lookup misses.
func (c *Client) ResolveSource(ctx context.Context, source string) (ResolvedMarket, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return ResolvedMarket{}, fmt.Errorf("market source required")
	}

	if yes, no, ok := parseTokenIDPair(source); ok {
		return ResolvedMarket{
			Question: "(manual token ids)",
			TokenIDs: []string{yes, no},
		}, nil
	}

	slug := SlugFromSource(source)
	if slug == "" {
		return ResolvedMarket{}, fmt.Errorf("cannot extract market slug from %q", source)
	}

	res, err := c.FetchMarketBySlug(ctx, slug)
	if err == nil {
		return res, nil
	}
	if err != errNotFound {
		return ResolvedMarket{}, err
	}
	return c.ResolveMarketBySlug(ctx, slug)
}
