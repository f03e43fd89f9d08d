// -----------------------------------------------------------------------
// Kbase client - knowledge article API access
// -----------------------------------------------------------------------

package kbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/httpclient"
	"github.com/ternarybob/colligo/internal/models"
)

// ErrArticleNotFound is returned for articles the source no longer has,
// whether reported honestly or disguised as a server error.
var ErrArticleNotFound = errors.New("knowledge article not found")

// StatusPublished is the only article status worth indexing.
const StatusPublished = "Published"

// Article is one knowledge article as the source reports it.
type Article struct {
	ID           string `json:"id"`
	DisplayID    string `json:"displayId"`
	Title        string `json:"title"`
	Content      string `json:"content"` // HTML body
	Language     string `json:"language"`
	Internal     bool   `json:"internal"`
	Company      string `json:"company"`
	Status       string `json:"status"`
	WebURL       string `json:"webUrl"`
	ModifiedDate string `json:"modifiedDate"`
}

type articlePage struct {
	Entries []Article `json:"entries"`
	Total   int       `json:"total"`
}

// Client talks to the knowledge base REST API. Auth tokens are cached with
// idle and absolute expiry and renewed transparently.
type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
	logger   arbor.ILogger
}

func NewClient(conn *models.Connection, pageSize int, logger arbor.ILogger) *Client {
	if pageSize < 1 {
		pageSize = 100
	}

	base := http.RoundTripper(&httpclient.LoggingTransport{Logger: logger})
	if conn.User != "" {
		base = &httpclient.ImpersonateTransport{Base: base, User: conn.User}
	}
	transport := &httpclient.TokenTransport{
		Base:           base,
		Source:         loginTokenSource(conn),
		Scheme:         "AR-JWT",
		IdleExpiry:     time.Hour,
		AbsoluteExpiry: 24 * time.Hour,
		Logger:         logger,
	}

	return &Client{
		baseURL:  strings.TrimRight(conn.BaseURL, "/"),
		pageSize: pageSize,
		http:     &http.Client{Transport: transport, Timeout: 60 * time.Second},
		logger:   logger,
	}
}

// loginTokenSource exchanges the connection credentials for a JWT. The
// login endpoint answers with the raw token as text.
func loginTokenSource(conn *models.Connection) httpclient.TokenSource {
	loginURL := strings.TrimRight(conn.BaseURL, "/") + "/api/jwt/login"
	form := url.Values{
		"username": {conn.Username},
		"password": {conn.Password},
	}
	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("login request failed: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("login returned %d", resp.StatusCode)
		}
		token := strings.TrimSpace(string(body))
		if token == "" {
			return "", fmt.Errorf("login returned an empty token")
		}
		return token, nil
	}
}

// notFoundMarkers identify article fetch failures that the source reports
// as status 500 even though the article is simply gone.
var notFoundMarkers = []string{
	"234010",
	"Failed to get the knowledge article",
	"404 Not Found",
}

func isDisguisedNotFound(status int, body string) bool {
	if status != http.StatusInternalServerError {
		return false
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// ListArticles returns one page of articles modified after modifiedSince,
// plus whether more pages remain.
func (c *Client) ListArticles(ctx context.Context, modifiedSince *time.Time, offset int) ([]Article, bool, error) {
	q := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(c.pageSize)},
	}
	if modifiedSince != nil {
		q.Set("modified_since", modifiedSince.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/articles?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("article list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("article list returned %d: %s", resp.StatusCode, string(body))
	}

	var page articlePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, false, fmt.Errorf("failed to decode article list: %w", err)
	}
	more := offset+len(page.Entries) < page.Total && len(page.Entries) > 0
	return page.Entries, more, nil
}

// GetArticle fetches a single article by its ID. A plain 404 and the
// disguised 500 variant both come back as ErrArticleNotFound.
func (c *Client) GetArticle(ctx context.Context, id string) (*Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/articles/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("article request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("article %s: %w", id, ErrArticleNotFound)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if isDisguisedNotFound(resp.StatusCode, string(body)) {
		c.logger.Debug().
			Str("article_id", id).
			Msg("Article fetch failed with a disguised not-found error")
		return nil, fmt.Errorf("article %s: %w", id, ErrArticleNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article request returned %d", resp.StatusCode)
	}

	var article Article
	if err := json.Unmarshal(body, &article); err != nil {
		return nil, fmt.Errorf("failed to decode article: %w", err)
	}
	return &article, nil
}

// PublishedIDs pages through every published article and returns the set of
// their IDs.
func (c *Client) PublishedIDs(ctx context.Context) (map[string]struct{}, error) {
	published := make(map[string]struct{})
	offset := 0
	for {
		articles, more, err := c.ListArticles(ctx, nil, offset)
		if err != nil {
			return nil, err
		}
		for _, a := range articles {
			if a.Status == StatusPublished {
				published[a.ID] = struct{}{}
			}
		}
		if !more {
			return published, nil
		}
		offset += len(articles)
	}
}
