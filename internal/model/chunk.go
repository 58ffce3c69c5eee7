package model

type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Visibility string    `json:"visibility"`
	Seq        int       `json:"seq"`
	StartOff   int       `json:"start_off"`
	EndOff     int       `json:"end_off"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	EmbedModel string    `json:"embed_model"`
	Ctime      int64     `json:"ctime"`
}

// ChunkMatch is a retrieval hit joined with its document metadata.
type ChunkMatch struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Seq          int     `json:"seq"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
	Visibility   string  `json:"visibility"`
	DocCtime     int64   `json:"doc_ctime"`
}
