// Package igdb is the external catalog client. The upstream API speaks
// Apicalypse: a POST body listing fields, filters and limits, authenticated
// with a Twitch app token that the client refreshes on its own.
package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gamedex/searchservice/internal/domain"
)

const (
	defaultBaseURL  = "https://api.igdb.com/v4"
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
	redisCacheKey   = "gsearch:igdb:"

	// Token refresh happens this long before the reported expiry so an
	// in-flight request never races an expiring token.
	tokenRefreshMargin = 5 * time.Minute
)

type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	http         *http.Client
	redis        *redis.Client
	cacheTTL     time.Duration

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Client       *http.Client
	Redis        *redis.Client
	CacheTTL     time.Duration
}

// game is the wire shape of one upstream entry. Every metric field is a
// pointer: the API omits fields it has no data for, and omitted must stay
// distinguishable from zero.
type game struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Category         *int              `json:"category,omitempty"`
	Summary          string            `json:"summary,omitempty"`
	TotalRating      *float64          `json:"total_rating,omitempty"`
	TotalRatingCount *int              `json:"total_rating_count,omitempty"`
	Follows          *int              `json:"follows,omitempty"`
	Hypes            *int              `json:"hypes,omitempty"`
	FirstReleaseDate *int64            `json:"first_release_date,omitempty"`
	ParentGame       *int64            `json:"parent_game,omitempty"`
	Cover            *cover            `json:"cover,omitempty"`
	Platforms        []platform        `json:"platforms,omitempty"`
	Franchises       []franchise       `json:"franchises,omitempty"`
	InvolvedCompany  []involvedCompany `json:"involved_companies,omitempty"`
}

type cover struct {
	URL string `json:"url,omitempty"`
}

type platform struct {
	Name string `json:"name,omitempty"`
}

type franchise struct {
	Name string `json:"name,omitempty"`
}

type involvedCompany struct {
	Company   company `json:"company"`
	Developer bool    `json:"developer,omitempty"`
	Publisher bool    `json:"publisher,omitempty"`
}

type company struct {
	Name string `json:"name,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Client{
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		http:         httpClient,
		redis:        cfg.Redis,
		cacheTTL:     cacheTTL,
	}
}

func (c *Client) Enabled() bool {
	return c.clientID != "" && c.clientSecret != ""
}

const gameFields = "fields id, name, category, summary, total_rating, total_rating_count, " +
	"follows, hypes, first_release_date, parent_game, cover.url, platforms.name, " +
	"franchises.name, involved_companies.company.name, involved_companies.developer, " +
	"involved_companies.publisher;"

// Search queries the upstream catalog by free text, up to limit entries.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.CatalogEntry, error) {
	if !c.Enabled() {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("search:%s:%d", strings.ToLower(query), limit)
	if c.redis != nil {
		data, err := c.redis.Get(ctx, redisCacheKey+cacheKey).Bytes()
		if err == nil {
			var entries []domain.CatalogEntry
			if json.Unmarshal(data, &entries) == nil {
				return entries, nil
			}
		}
	}

	body := fmt.Sprintf("search %q; %s limit %d;", query, gameFields, limit)
	games, err := c.query(ctx, body)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.CatalogEntry, 0, len(games))
	for i := range games {
		entries = append(entries, toEntry(&games[i]))
	}

	if c.redis != nil {
		if data, err := json.Marshal(entries); err == nil {
			_ = c.redis.Set(ctx, redisCacheKey+cacheKey, data, c.cacheTTL).Err()
		}
	}
	return entries, nil
}

// FetchByIDs refreshes a known set of entries, used by the backfill syncer.
func (c *Client) FetchByIDs(ctx context.Context, ids []int64) ([]domain.CatalogEntry, error) {
	if !c.Enabled() || len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	body := fmt.Sprintf("%s where id = (%s); limit %d;", gameFields, strings.Join(parts, ","), len(ids))
	games, err := c.query(ctx, body)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.CatalogEntry, 0, len(games))
	for i := range games {
		entries = append(entries, toEntry(&games[i]))
	}
	return entries, nil
}

func (c *Client) query(ctx context.Context, body string) ([]game, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("igdb auth: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/games", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("igdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}
	var games []game
	if err := json.Unmarshal(payload, &games); err != nil {
		return nil, fmt.Errorf("igdb decode: %w", err)
	}
	return games, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	params := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}

func toEntry(g *game) domain.CatalogEntry {
	entry := domain.CatalogEntry{
		ExternalID:  g.ID,
		Name:        g.Name,
		Category:    domain.CategoryUnset,
		Summary:     g.Summary,
		Rating:      g.TotalRating,
		RatingCount: g.TotalRatingCount,
		Follows:     g.Follows,
		Hypes:       g.Hypes,
		ParentID:    g.ParentGame,
	}
	if g.Category != nil {
		entry.Category = domain.Category(*g.Category)
	}
	if g.FirstReleaseDate != nil {
		released := time.Unix(*g.FirstReleaseDate, 0).UTC()
		entry.ReleasedAt = &released
	}
	if g.Cover != nil {
		entry.CoverURL = normalizeCoverURL(g.Cover.URL)
	}
	for _, p := range g.Platforms {
		if p.Name != "" {
			entry.Platforms = append(entry.Platforms, p.Name)
		}
	}
	if len(g.Franchises) > 0 {
		entry.Franchise = g.Franchises[0].Name
	}
	for _, ic := range g.InvolvedCompany {
		if ic.Company.Name == "" {
			continue
		}
		if ic.Developer && entry.Developer == "" {
			entry.Developer = ic.Company.Name
		}
		if ic.Publisher && entry.Publisher == "" {
			entry.Publisher = ic.Company.Name
		}
	}
	return entry
}

// normalizeCoverURL upgrades the protocol-relative thumbnail URL the API
// returns to an absolute big-cover URL.
func normalizeCoverURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	return strings.Replace(raw, "t_thumb", "t_cover_big", 1)
}
