package models

import "time"

type Document struct {
	ID         int64                  `json:"id"`
	Name       string                 `json:"name"`
	URL        string                 `json:"url,omitempty"`
	Content    string                 `json:"content"`
	FileType   string                 `json:"fileType"`
	TokenCount int                    `json:"tokenCount"`
	UploadedBy int64                  `json:"uploadedBy"`
	CreatedAt  time.Time              `json:"createdAt"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type ProcessedDocument struct {
	Document
	Chunks []string
}

// Chunk is one indexed span of a document. DocumentName is copied at ingestion
// time so queries never join back to the document store.
type Chunk struct {
	DocumentID   int64
	DocumentName string
	ChunkIndex   int
	Content      string
	Embedding    []float32
}

// RetrievalResult is a single ranked hit from a similarity query. Score keeps
// full precision; rounding happens only when it is summarised for display.
type RetrievalResult struct {
	DocumentID   int64   `json:"documentId"`
	DocumentName string  `json:"documentName"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}
