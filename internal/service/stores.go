package service

import (
	"context"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/repo"
)

// Store interfaces consumed by the services. The repo package implements
// all of them against postgres; tests substitute in-memory fakes.

type UserStore interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Commit(ctx context.Context, docID string, chunkCount int, mtime int64) error
	GetByID(ctx context.Context, docID string) (*model.Document, error)
	List(ctx context.Context, userID string) ([]*model.Document, error)
	Count(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, docID string, mtime int64) error
	Remove(ctx context.Context, docID string) error
}

type ChunkStore interface {
	InsertBatch(ctx context.Context, chunks []*model.DocumentChunk) error
	Search(ctx context.Context, q repo.SearchQuery) ([]*model.ChunkMatch, error)
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	CountByDocument(ctx context.Context, documentID string) (int64, error)
}

type TurnStore interface {
	Insert(ctx context.Context, turn *model.ConversationTurn) error
	ListRecent(ctx context.Context, userID, sessionID string, cutoff int64, limit int) ([]*model.ConversationTurn, error)
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
	DeleteBySession(ctx context.Context, userID, sessionID string) (int64, error)
}
