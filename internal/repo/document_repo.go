package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// Document lifecycle. Pending rows already hold a quota slot; only
// committed documents are visible to retrieval.
const (
	DocumentStatePending   = 1
	DocumentStateCommitted = 2
	DocumentStateDeleted   = 3
)

var documentColumns = []string{"id", "user_id", "name", "source_key", "visibility", "text_len", "chunk_count", "state", "ctime", "mtime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":          doc.ID,
		"user_id":     doc.UserID,
		"name":        doc.Name,
		"source_key":  doc.SourceKey,
		"visibility":  doc.Visibility,
		"text_len":    doc.TextLen,
		"chunk_count": doc.ChunkCount,
		"state":       doc.State,
		"ctime":       doc.Ctime,
		"mtime":       doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// Commit flips a pending document to committed. Only pending rows match,
// so a document can never be committed twice.
func (r *DocumentRepo) Commit(ctx context.Context, docID string, chunkCount int, mtime int64) error {
	where := map[string]interface{}{
		"id":    docID,
		"state": DocumentStatePending,
	}
	update := map[string]interface{}{
		"state":       DocumentStateCommitted,
		"chunk_count": chunkCount,
		"mtime":       mtime,
	}
	return r.updateWhere(ctx, where, update)
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":            docID,
		"_custom_state": builder.Custom("state != ?", DocumentStateDeleted),
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	doc, err := scanDocument(rows)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) List(ctx context.Context, userID string) ([]*model.Document, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"state":    DocumentStateCommitted,
		"_orderby": "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	docs := make([]*model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of quota-holding documents for a user, which
// includes pending rows still being ingested.
func (r *DocumentRepo) Count(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(1) FROM documents WHERE user_id = $1 AND state IN ($2, $3)`
	row := r.db.QueryRowContext(ctx, query, userID, DocumentStatePending, DocumentStateCommitted)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, docID string, mtime int64) error {
	where := map[string]interface{}{
		"id":            docID,
		"_custom_state": builder.Custom("state != ?", DocumentStateDeleted),
	}
	update := map[string]interface{}{
		"state": DocumentStateDeleted,
		"mtime": mtime,
	}
	return r.updateWhere(ctx, where, update)
}

// Remove hard-deletes a document row. Used to roll back pending rows whose
// ingestion failed, so they stop holding a quota slot.
func (r *DocumentRepo) Remove(ctx context.Context, docID string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, docID)
	return err
}

// ListStalePending returns pending documents older than cutoff. These are
// leftovers of ingestions that died before commit or cleanup.
func (r *DocumentRepo) ListStalePending(ctx context.Context, cutoff int64, limit int) ([]*model.Document, error) {
	where := map[string]interface{}{
		"state":         DocumentStatePending,
		"_custom_mtime": builder.Custom("mtime < ?", cutoff),
		"_orderby":      "mtime asc",
		"_limit":        []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	docs := make([]*model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) updateWhere(ctx context.Context, where, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.SourceKey, &doc.Visibility,
		&doc.TextLen, &doc.ChunkCount, &doc.State, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	return &doc, nil
}
