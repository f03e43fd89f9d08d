package models

// Connection is a datasource-specific configuration record, loaded on demand
// and passed through to the step handlers. Only the fields relevant to the
// owning datasource are set.
type Connection struct {
	ID           string `json:"id"`
	Datasource   string `json:"datasource,omitempty"`
	BaseURL      string `json:"base_url,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RootPage     string `json:"root_page,omitempty"` // wiki: page whose tree is crawled
	DriveID      string `json:"drive_id,omitempty"`  // docshare: drive to enumerate
	User         string `json:"user,omitempty"`      // kbase: user the queries run as
}
