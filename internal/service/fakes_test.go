package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/repo"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*model.User)}
	for _, user := range users {
		f.users[user.ID] = user
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return user, nil
}

type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocs(docs ...*model.Document) *fakeDocs {
	f := &fakeDocs{docs: make(map[string]*model.Document)}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *fakeDocs) Create(_ context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; ok {
		return appErr.ErrConflict
	}
	clone := *doc
	f.docs[doc.ID] = &clone
	return nil
}

func (f *fakeDocs) Commit(_ context.Context, docID string, chunkCount int, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.State != repo.DocumentStatePending {
		return appErr.ErrNotFound
	}
	doc.State = repo.DocumentStateCommitted
	doc.ChunkCount = chunkCount
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocs) GetByID(_ context.Context, docID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.State == repo.DocumentStateDeleted {
		return nil, appErr.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (f *fakeDocs) List(_ context.Context, userID string) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make([]*model.Document, 0)
	for _, doc := range f.docs {
		if doc.UserID == userID && doc.State == repo.DocumentStateCommitted {
			clone := *doc
			docs = append(docs, &clone)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Ctime > docs[j].Ctime })
	return docs, nil
}

func (f *fakeDocs) Count(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, doc := range f.docs {
		if doc.UserID == userID &&
			(doc.State == repo.DocumentStatePending || doc.State == repo.DocumentStateCommitted) {
			count++
		}
	}
	return count, nil
}

func (f *fakeDocs) Delete(_ context.Context, docID string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.State == repo.DocumentStateDeleted {
		return appErr.ErrNotFound
	}
	doc.State = repo.DocumentStateDeleted
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocs) Remove(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, docID)
	return nil
}

type fakeChunks struct {
	mu           sync.Mutex
	rows         map[string][]*model.DocumentChunk
	searchResult []*model.ChunkMatch
	lastQuery    repo.SearchQuery
	insertErr    error
	deleteErr    error
}

func newFakeChunks() *fakeChunks {
	return &fakeChunks{rows: make(map[string][]*model.DocumentChunk)}
}

func (f *fakeChunks) InsertBatch(_ context.Context, chunks []*model.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, chunk := range chunks {
		f.rows[chunk.DocumentID] = append(f.rows[chunk.DocumentID], chunk)
	}
	return nil
}

func (f *fakeChunks) Search(_ context.Context, q repo.SearchQuery) ([]*model.ChunkMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	return f.searchResult, nil
}

func (f *fakeChunks) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	removed := int64(len(f.rows[documentID]))
	delete(f.rows, documentID)
	return removed, nil
}

func (f *fakeChunks) CountByDocument(_ context.Context, documentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows[documentID])), nil
}

func (f *fakeChunks) totalChunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, chunks := range f.rows {
		total += len(chunks)
	}
	return total
}

type fakeTurns struct {
	mu    sync.Mutex
	turns []*model.ConversationTurn
}

func (f *fakeTurns) Insert(_ context.Context, turn *model.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *turn
	f.turns = append(f.turns, &clone)
	return nil
}

func (f *fakeTurns) ListRecent(_ context.Context, userID, sessionID string, cutoff int64, limit int) ([]*model.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*model.ConversationTurn, 0)
	for i := len(f.turns) - 1; i >= 0 && len(matched) < limit; i-- {
		turn := f.turns[i]
		if turn.UserID == userID && turn.SessionID == sessionID && turn.Ctime >= cutoff {
			matched = append(matched, turn)
		}
	}
	return matched, nil
}

func (f *fakeTurns) DeleteBefore(_ context.Context, cutoff int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.turns[:0]
	deleted := int64(0)
	for _, turn := range f.turns {
		if turn.Ctime < cutoff {
			deleted++
			continue
		}
		kept = append(kept, turn)
	}
	f.turns = kept
	return deleted, nil
}

func (f *fakeTurns) DeleteBySession(_ context.Context, userID, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.turns[:0]
	deleted := int64(0)
	for _, turn := range f.turns {
		if turn.UserID == userID && turn.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, turn)
	}
	f.turns = kept
	return deleted, nil
}

func (f *fakeTurns) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns)
}

type fakeEmbedder struct {
	mu    sync.Mutex
	dim   int
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, _ string, texts []string, _ string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dim
	if dim <= 0 {
		dim = 4
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector := make([]float32, dim)
		vector[0] = float32(len(text))
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "test-embed"
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGenerator struct {
	mu         sync.Mutex
	reply      string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, prompt string) (*ai.GenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	reply := f.reply
	if reply == "" {
		reply = fmt.Sprintf("answer %d", f.calls)
	}
	return &ai.GenResult{Text: reply}, nil
}

func (f *fakeGenerator) promptSeen() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
