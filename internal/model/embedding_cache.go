package model

// EmbeddingCache is a persisted embedding keyed by model, task type and
// the sha256 of the normalized text. A hit skips the provider call and
// its budget cost entirely.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
