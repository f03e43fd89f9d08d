// -----------------------------------------------------------------------
// Wiki client - page tree access over the content REST API
// -----------------------------------------------------------------------

package wiki

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

// ErrPageNotFound is returned for pages deleted from the wiki.
var ErrPageNotFound = errors.New("wiki page not found")

// Page is one wiki page with its storage-format HTML body.
type Page struct {
	ID     string
	Title  string
	Body   string
	WebURL string
}

type pageResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type childPageResponse struct {
	Results []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"results"`
	Size int `json:"size"`
}

const childPageLimit = 50

// Client reads the wiki over its REST API with basic auth.
type Client struct {
	baseURL string
	http    *http.Client
	logger  arbor.ILogger
}

func NewClient(conn *models.Connection, logger arbor.ILogger) *Client {
	transport := &httpclient.BasicAuthTransport{
		Base:     &httpclient.LoggingTransport{Logger: logger},
		Username: conn.Username,
		Password: conn.Password,
	}
	return &Client{
		baseURL: strings.TrimRight(conn.BaseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: 60 * time.Second},
		logger:  logger,
	}
}

// GetPage fetches a page with its storage body.
func (c *Client) GetPage(ctx context.Context, id string) (*Page, error) {
	endpoint := c.baseURL + "/rest/api/content/" + url.PathEscape(id) + "?expand=body.storage"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("page %s: %w", id, ErrPageNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("page request returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}

	webURL := parsed.Links.WebUI
	if webURL != "" && !strings.HasPrefix(webURL, "http") {
		webURL = c.baseURL + webURL
	}
	return &Page{
		ID:     parsed.ID,
		Title:  parsed.Title,
		Body:   parsed.Body.Storage.Value,
		WebURL: webURL,
	}, nil
}

// ChildPageIDs returns the direct child page IDs of a page.
func (c *Client) ChildPageIDs(ctx context.Context, id string) ([]string, error) {
	var ids []string
	start := 0
	for {
		endpoint := fmt.Sprintf("%s/rest/api/content/%s/child/page?start=%s&limit=%d",
			c.baseURL, url.PathEscape(id), strconv.Itoa(start), childPageLimit)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("child page request failed: %w", err)
		}

		var parsed childPageResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("child page request returned %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode child pages: %w", decodeErr)
		}

		for _, child := range parsed.Results {
			ids = append(ids, child.ID)
		}
		if len(parsed.Results) < childPageLimit {
			return ids, nil
		}
		start += len(parsed.Results)
	}
}

// TreePageIDs walks the page tree rooted at rootID breadth first and
// returns every page ID including the root.
func (c *Client) TreePageIDs(ctx context.Context, rootID string) ([]string, error) {
	seen := map[string]struct{}{rootID: {}}
	order := []string{rootID}
	queue := []string{rootID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := c.ChildPageIDs(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			order = append(order, child)
			queue = append(queue, child)
		}
	}
	return order, nil
}
