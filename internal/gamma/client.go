package gamma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultURL = "https://gamma-api.polymarket.com"

// DefaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
const DefaultUserAgent = "Mozilla/5.0"

type Client struct {
	host       string
	httpClient *http.Client
	userAgent  string
}

func NewClient(host string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("gamma url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("gamma url must be http(s), got %q", host)
	}

	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
		userAgent: DefaultUserAgent,
	}, nil
}

type clobTokenIDs []string

func (c *clobTokenIDs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = nil
		return nil
	}

	// Gamma commonly returns clobTokenIds as a JSON string that itself contains a JSON array.
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*c = nil
			return nil
		}
		var ids []string
		if err := json.Unmarshal([]byte(s), &ids); err != nil {
			return err
		}
		*c = ids
		return nil
	}

	// Some endpoints may return it directly as an array.
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*c = ids
	return nil
}

type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}

	// Gamma sometimes returns lists as a JSON string that itself contains a JSON array.
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = nil
			return nil
		}
		var vals []string
		if err := json.Unmarshal([]byte(raw), &vals); err != nil {
			return err
		}
		*s = vals
		return nil
	}

	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = vals
	return nil
}

type event struct {
	Slug    string   `json:"slug"`
	Markets []market `json:"markets"`
}

type market struct {
	Slug         string       `json:"slug"`
	Question     string       `json:"question"`
	Title        string       `json:"title"`
	ConditionID  string       `json:"conditionId"`
	EndDate      string       `json:"endDate"`
	EndTime      string       `json:"endTime"`
	Closed       bool         `json:"closed"`
	Outcomes     stringList   `json:"outcomes"`
	ClobTokenIDs clobTokenIDs `json:"clobTokenIds"`
}

type ResolvedMarket struct {
	EventSlug   string
	Question    string
	ConditionID string
	Outcomes    []string
	TokenIDs    []string
	// EndTime is zero when the market carries no usable end date.
	EndTime time.Time
	Closed  bool
}

// YesTokenID returns the first token id, which Gamma orders as the YES
// (or Up) outcome.
func (m ResolvedMarket) YesTokenID() string {
	if len(m.TokenIDs) > 0 {
		return m.TokenIDs[0]
	}
	return ""
}

func (m ResolvedMarket) NoTokenID() string {
	if len(m.TokenIDs) > 1 {
		return m.TokenIDs[1]
	}
	return ""
}

func (c *Client) ResolveMarketBySlug(ctx context.Context, eventSlug string) (ResolvedMarket, error) {
	if c == nil {
		return ResolvedMarket{}, fmt.Errorf("gamma client nil")
	}
	eventSlug = strings.TrimSpace(eventSlug)
	if eventSlug == "" {
		return ResolvedMarket{}, fmt.Errorf("event slug required")
	}

	q := url.Values{}
	q.Set("slug", eventSlug)
	endpoint := c.host + "/events?" + q.Encode()

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

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return ResolvedMarket{}, fmt.Errorf("gamma %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	var events []event
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&events); err != nil {
		return ResolvedMarket{}, fmt.Errorf("gamma decode: %w", err)
	}
	if len(events) == 0 {
		return ResolvedMarket{}, fmt.Errorf("gamma: no event for slug %q", eventSlug)
	}

	// Prefer a market with an exact matching slug, else fallback to the first market.
	var chosen *market
	for i := range events {
		ev := &events[i]
		for j := range ev.Markets {
			m := &ev.Markets[j]
			if strings.TrimSpace(m.Slug) == eventSlug {
				chosen = m
				break
			}
		}
		if chosen != nil {
			break
		}
	}
	if chosen == nil {
		if len(events[0].Markets) == 0 {
			return ResolvedMarket{}, fmt.Errorf("gamma: event %q has no markets", eventSlug)
		}
		chosen = &events[0].Markets[0]
	}

	ids := make([]string, 0, len(chosen.ClobTokenIDs))
	for _, id := range chosen.ClobTokenIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) != 2 {
		return ResolvedMarket{}, fmt.Errorf("gamma: expected 2 clobTokenIds for %q, got %d", eventSlug, len(ids))
	}

	res := chosen.resolved()
	res.EventSlug = eventSlug
	res.TokenIDs = ids
	return res, nil
}

func (m *market) resolved() ResolvedMarket {
	question := strings.TrimSpace(m.Question)
	if question == "" {
		question = strings.TrimSpace(m.Title)
	}
	if question == "" {
		question = m.Slug
	}

	ids := make([]string, 0, len(m.ClobTokenIDs))
	for _, id := range m.ClobTokenIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	return ResolvedMarket{
		EventSlug:   m.Slug,
		Question:    question,
		ConditionID: strings.TrimSpace(m.ConditionID),
		Outcomes:    append([]string(nil), m.Outcomes...),
		TokenIDs:    ids,
		EndTime:     parseEndTime(m.EndDate, m.EndTime),
		Closed:      m.Closed,
	}
}

// parseEndTime accepts RFC3339 or a few date-only shapes Gamma has used.
func parseEndTime(candidates ...string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	lr := &io.LimitedReader{R: r, N: max}
	b, _ := io.ReadAll(lr)
	return strings.TrimSpace(string(b))
}
