// -----------------------------------------------------------------------
// Document and index metadata models
// -----------------------------------------------------------------------

package models

// DocumentMetadata describes the canonical metadata carried by every indexed
// document. Fields are present only when known; the index stores them under
// a `metadata` sub-object.
type DocumentMetadata struct {
	Datasource   string   `json:"datasource,omitempty"`
	DocID        string   `json:"doc_id,omitempty"`
	DocDisplayID string   `json:"doc_display_id,omitempty"`
	Source       string   `json:"source,omitempty"`
	ConnectionID string   `json:"connection_id,omitempty"`
	Title        string   `json:"title,omitempty"`
	Language     string   `json:"language,omitempty"`
	Internal     *bool    `json:"internal,omitempty"`
	Company      string   `json:"company,omitempty"`
	WebURL       string   `json:"web_url,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ChunkID      int      `json:"chunk_id"`
}

// Document is one source artifact ready for chunking and indexing.
type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// Chunk is one embedded slice of a document, the unit stored in the index.
type Chunk struct {
	Text      string           `json:"text"`
	Embedding []float32        `json:"embedding,omitempty"`
	Metadata  DocumentMetadata `json:"metadata"`
}

// Attachment is an uploaded binary stored alongside a job record.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}
