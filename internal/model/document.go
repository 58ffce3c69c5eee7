package model

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

type Document struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	SourceKey  string `json:"source_key,omitempty"`
	Visibility string `json:"visibility"`
	TextLen    int    `json:"text_len"`
	ChunkCount int    `json:"chunk_count"`
	State      int    `json:"state"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}
