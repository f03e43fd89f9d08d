// -----------------------------------------------------------------------
// Docshare client - drive enumeration and file download
// -----------------------------------------------------------------------

package docshare

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
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// ErrItemNotFound is returned for drive items removed from the share.
var ErrItemNotFound = errors.New("drive item not found")

// maxDownloadSize caps single file downloads.
const maxDownloadSize = 64 << 20

// Item is one file in a drive.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	WebURL   string `json:"webUrl"`
	Size     int64  `json:"size"`
	Modified string `json:"lastModified"`
}

type itemPage struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

const itemPageLimit = 100

// requestsPerSecond limits calls against the drive API. The share backend
// throttles aggressively above roughly this rate.
const requestsPerSecond = 10

// Client reads a document share drive. Auth uses the OAuth2 client
// credentials flow; the oauth2 transport caches and renews the token.
type Client struct {
	baseURL string
	http    *http.Client
	logger  arbor.ILogger
}

func NewClient(conn *models.Connection, logger arbor.ILogger) *Client {
	creds := clientcredentials.Config{
		ClientID:     conn.ClientID,
		ClientSecret: conn.ClientSecret,
		TokenURL:     conn.TokenURL,
	}

	base := &http.Client{
		Transport: &httpclient.RateLimitTransport{
			Base:    &httpclient.LoggingTransport{Logger: logger},
			Limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		},
		Timeout: 120 * time.Second,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Client{
		baseURL: strings.TrimRight(conn.BaseURL, "/"),
		http:    creds.Client(ctx),
		logger:  logger,
	}
}

// ListItems returns one page of drive items and whether more remain.
func (c *Client) ListItems(ctx context.Context, driveID string, offset int) ([]Item, bool, error) {
	endpoint := fmt.Sprintf("%s/api/drives/%s/items?offset=%s&limit=%d",
		c.baseURL, url.PathEscape(driveID), strconv.Itoa(offset), itemPageLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("drive listing failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("drive listing returned %d: %s", resp.StatusCode, string(body))
	}

	var page itemPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, false, fmt.Errorf("failed to decode drive listing: %w", err)
	}
	more := offset+len(page.Items) < page.Total && len(page.Items) > 0
	return page.Items, more, nil
}

// GetItem fetches one drive item's metadata.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*Item, error) {
	endpoint := fmt.Sprintf("%s/api/drives/%s/items/%s",
		c.baseURL, url.PathEscape(driveID), url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("item request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("item request returned %d", resp.StatusCode)
	}

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return &item, nil
}

// Download fetches the item's raw content.
func (c *Client) Download(ctx context.Context, driveID, itemID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/drives/%s/items/%s/content",
		c.baseURL, url.PathEscape(driveID), url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
}

// AllItemIDs pages through the whole drive and returns the set of item IDs.
func (c *Client) AllItemIDs(ctx context.Context, driveID string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	offset := 0
	for {
		items, more, err := c.ListItems(ctx, driveID, offset)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			ids[item.ID] = struct{}{}
		}
		if !more {
			return ids, nil
		}
		offset += len(items)
	}
}
