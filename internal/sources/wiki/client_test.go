package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

// newWikiServer serves a small page tree: root 100 with children 101, 102,
// and 102 with child 103.
func newWikiServer(t *testing.T) *Client {
	t.Helper()
	tree := map[string][]string{
		"100": {"101", "102"},
		"102": {"103"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/content/", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "wiki-user", user)
		assert.Equal(t, "secret", pass)

		var id string
		if n, _ := fmt.Sscanf(r.URL.Path, "/rest/api/content/%s", &id); n != 1 {
			http.NotFound(w, r)
			return
		}

		if len(id) > 3 { // "102/child/page"
			var parent string
			fmt.Sscanf(r.URL.Path, "/rest/api/content/%3s", &parent)
			resp := childPageResponse{}
			for _, child := range tree[parent] {
				resp.Results = append(resp.Results, struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				}{ID: child, Title: "Page " + child})
			}
			resp.Size = len(resp.Results)
			json.NewEncoder(w).Encode(resp)
			return
		}

		if id == "999" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var resp pageResponse
		resp.ID = id
		resp.Title = "Page " + id
		resp.Body.Storage.Value = "<p>Body of " + id + "</p>"
		resp.Links.WebUI = "/pages/" + id
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn := &models.Connection{BaseURL: srv.URL, Username: "wiki-user", Password: "secret"}
	return NewClient(conn, arbor.NewLogger())
}

func TestGetPage(t *testing.T) {
	client := newWikiServer(t)

	page, err := client.GetPage(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, "100", page.ID)
	assert.Equal(t, "Page 100", page.Title)
	assert.Contains(t, page.Body, "Body of 100")
	assert.Contains(t, page.WebURL, "/pages/100")
}

func TestGetPageNotFound(t *testing.T) {
	client := newWikiServer(t)

	_, err := client.GetPage(context.Background(), "999")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestTreePageIDs(t *testing.T) {
	client := newWikiServer(t)

	ids, err := client.TreePageIDs(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "101", "102", "103"}, ids)
}

func TestCleanStorageHTMLRemovesMacros(t *testing.T) {
	body := `<p>Keep me</p><ac:structured-macro ac:name="code"><ac:plain-text-body>secret</ac:plain-text-body></ac:structured-macro><script>alert(1)</script>`
	cleaned := cleanStorageHTML(body)
	assert.Contains(t, cleaned, "Keep me")
	assert.NotContains(t, cleaned, "alert(1)")
	assert.NotContains(t, cleaned, "secret")
}
