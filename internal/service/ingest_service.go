package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/chunker"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/keylock"
	"github.com/xxxsen/docchat/internal/repo"
)

type IngestConfig struct {
	EmbedTaskDoc string
	MaxTextBytes int64
}

// IngestService drives document ingestion: quota check, fetch, normalize,
// chunk, embed and index, all-or-nothing per document. A pending document
// row reserves the quota slot before the slow embedding work starts.
type IngestService struct {
	users    UserStore
	docs     DocumentStore
	chunks   ChunkStore
	files    filestore.Store
	embedder ai.IEmbedder
	splitter *chunker.Chunker
	locks    *keylock.KeyLock
	cfg      IngestConfig
}

func NewIngestService(users UserStore, docs DocumentStore, chunks ChunkStore,
	files filestore.Store, embedder ai.IEmbedder, splitter *chunker.Chunker, cfg IngestConfig) *IngestService {
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = 1 << 20
	}
	return &IngestService{
		users:    users,
		docs:     docs,
		chunks:   chunks,
		files:    files,
		embedder: embedder,
		splitter: splitter,
		locks:    keylock.New(),
		cfg:      cfg,
	}
}

type IngestRequest struct {
	Name      string
	Content   string
	SourceKey string
	Markdown  bool
	Public    bool
}

// Ingest runs the full pipeline. The quota check and the pending insert
// happen under a per-user lock so two concurrent uploads cannot both take
// the last slot; embedding runs after the lock is released because the
// pending row already holds the slot. Any failure past the pending insert
// rolls the document back completely.
func (s *IngestService) Ingest(ctx context.Context, userID string, req IngestRequest) (*model.Document, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: document name is required", appErr.ErrInvalid)
	}
	if req.Content == "" && req.SourceKey == "" {
		return nil, fmt.Errorf("%w: content or source_key is required", appErr.ErrInvalid)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, pieces, err := s.reserve(ctx, user, req)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document reserved for ingestion",
		zap.String("document_id", doc.ID),
		zap.String("user_id", userID),
		zap.Int("chunks", len(pieces)))
	if err := s.index(ctx, doc, pieces); err != nil {
		if rerr := s.rollback(ctx, doc.ID); rerr != nil {
			actual, _ := s.chunks.CountByDocument(context.WithoutCancel(ctx), doc.ID)
			logutil.GetLogger(ctx).Error("ingestion rollback failed",
				zap.String("document_id", doc.ID), zap.Error(rerr))
			return nil, &appErr.IndexInconsistencyError{
				DocumentID: doc.ID,
				Expected:   0,
				Actual:     actual,
			}
		}
		return nil, err
	}
	doc.State = repo.DocumentStateCommitted
	doc.ChunkCount = len(pieces)
	logutil.GetLogger(ctx).Info("document ingested",
		zap.String("document_id", doc.ID), zap.Int("chunks", len(pieces)))
	return doc, nil
}

// reserve holds the per-user lock across the quota check and the pending
// insert. Fetching and chunking happen inside the lock too, so a document
// that cannot produce chunks never takes a slot.
func (s *IngestService) reserve(ctx context.Context, user *model.User, req IngestRequest) (*model.Document, []chunker.Chunk, error) {
	s.locks.Lock(user.ID)
	defer s.locks.Unlock(user.ID)

	if !user.Unlimited() {
		count, err := s.docs.Count(ctx, user.ID)
		if err != nil {
			return nil, nil, err
		}
		if count >= user.DocumentLimit {
			return nil, nil, &appErr.DocumentLimitExceededError{
				Limit:   user.DocumentLimit,
				Current: count,
			}
		}
	}

	text, err := s.loadText(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	text = normalizeContent(text, req.Markdown)
	pieces := s.splitter.Split(text)
	if len(pieces) == 0 {
		return nil, nil, fmt.Errorf("%w: document produced no chunks", appErr.ErrInvalid)
	}

	// public visibility is an admin privilege, everyone else stores private
	visibility := model.VisibilityPrivate
	if req.Public && user.IsAdmin() {
		visibility = model.VisibilityPublic
	}
	now := time.Now().Unix()
	doc := &model.Document{
		ID:         newID(),
		UserID:     user.ID,
		Name:       strings.TrimSpace(req.Name),
		SourceKey:  req.SourceKey,
		Visibility: visibility,
		TextLen:    utf8.RuneCountInString(text),
		State:      repo.DocumentStatePending,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, nil, err
	}
	return doc, pieces, nil
}

func (s *IngestService) loadText(ctx context.Context, req IngestRequest) (string, error) {
	if req.Content != "" {
		if int64(len(req.Content)) > s.cfg.MaxTextBytes {
			return "", fmt.Errorf("%w: document exceeds %d bytes", appErr.ErrInvalid, s.cfg.MaxTextBytes)
		}
		return req.Content, nil
	}
	if s.files == nil {
		return "", fmt.Errorf("%w: no file store configured", appErr.ErrInvalid)
	}
	reader, err := s.files.Open(ctx, req.SourceKey)
	if err != nil {
		return "", fmt.Errorf("%w: source %s not readable", appErr.ErrNotFound, req.SourceKey)
	}
	defer reader.Close()
	data, err := io.ReadAll(io.LimitReader(reader, s.cfg.MaxTextBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > s.cfg.MaxTextBytes {
		return "", fmt.Errorf("%w: document exceeds %d bytes", appErr.ErrInvalid, s.cfg.MaxTextBytes)
	}
	return string(data), nil
}

// index embeds every chunk and writes them in one batch, then flips the
// document to committed. Embedding is budget-gated inside the client.
func (s *IngestService) index(ctx context.Context, doc *model.Document, pieces []chunker.Chunk) error {
	texts := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		texts = append(texts, piece.Text)
	}
	vectors, err := s.embedder.EmbedBatch(ctx, doc.UserID, texts, s.cfg.EmbedTaskDoc)
	if err != nil {
		return err
	}
	if len(vectors) != len(pieces) {
		return fmt.Errorf("%w: got %d vectors for %d chunks",
			appErr.ErrEmbeddingUnavailable, len(vectors), len(pieces))
	}
	now := time.Now().Unix()
	rows := make([]*model.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		rows = append(rows, &model.DocumentChunk{
			ID:         newID(),
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			Visibility: doc.Visibility,
			Seq:        piece.Seq,
			StartOff:   piece.Start,
			EndOff:     piece.End,
			Content:    piece.Text,
			Embedding:  vectors[i],
			EmbedModel: s.embedder.ModelName(),
			Ctime:      now,
		})
	}
	if err := s.chunks.InsertBatch(ctx, rows); err != nil {
		return err
	}
	return s.docs.Commit(ctx, doc.ID, len(rows), time.Now().Unix())
}

// rollback removes everything a failed ingestion wrote. It runs detached
// from the request context, a canceled upload still has to clean up.
func (s *IngestService) rollback(ctx context.Context, docID string) error {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.chunks.DeleteByDocument(ctx, docID); err != nil {
		return err
	}
	return s.docs.Remove(ctx, docID)
}

func (s *IngestService) Get(ctx context.Context, userID, docID string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID == userID || doc.Visibility == model.VisibilityPublic {
		return doc, nil
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, appErr.ErrForbidden
	}
	return doc, nil
}

func (s *IngestService) List(ctx context.Context, userID string) ([]*model.Document, error) {
	return s.docs.List(ctx, userID)
}

// Delete removes a document with all of its chunks. Only the owner or an
// admin may delete; deleting an already chunk-less document is fine.
func (s *IngestService) Delete(ctx context.Context, userID, docID string) error {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if doc.UserID != userID {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if !user.IsAdmin() {
			return appErr.ErrForbidden
		}
	}
	if _, err := s.chunks.DeleteByDocument(ctx, docID); err != nil {
		return err
	}
	return s.docs.Delete(ctx, docID, time.Now().Unix())
}
