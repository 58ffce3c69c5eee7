package repo

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch writes all chunks in a single multi-row statement, so a
// document's chunks land together or not at all.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		data = append(data, map[string]interface{}{
			"id":          chunk.ID,
			"document_id": chunk.DocumentID,
			"user_id":     chunk.UserID,
			"visibility":  chunk.Visibility,
			"seq":         chunk.Seq,
			"start_off":   chunk.StartOff,
			"end_off":     chunk.EndOff,
			"content":     chunk.Content,
			"embedding":   pgvector.NewVector(chunk.Embedding),
			"embed_model": chunk.EmbedModel,
			"ctime":       chunk.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("document_chunks", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// SearchQuery filters retrieval to the given owners, optionally widened to
// public documents. Only chunks embedded with Model are considered so
// vectors from different models never mix in one ranking.
type SearchQuery struct {
	Vector   []float32
	OwnerIDs []string
	Public   bool
	Model    string
	TopK     int
}

// Search ranks chunks by cosine similarity. Ties go to the more recently
// ingested document, then chunk order.
func (r *ChunkRepo) Search(ctx context.Context, q SearchQuery) ([]*model.ChunkMatch, error) {
	if len(q.OwnerIDs) == 0 && !q.Public {
		return []*model.ChunkMatch{}, nil
	}
	var access []string
	args := []interface{}{pgvector.NewVector(q.Vector), q.Model, DocumentStateCommitted}
	for _, owner := range q.OwnerIDs {
		args = append(args, owner)
		access = append(access, placeholder(len(args)))
	}
	cond := ""
	if len(access) > 0 {
		cond = "c.user_id IN (" + strings.Join(access, ", ") + ")"
	}
	if q.Public {
		pub := "c.visibility = '" + model.VisibilityPublic + "'"
		if cond == "" {
			cond = pub
		} else {
			cond = "(" + cond + " OR " + pub + ")"
		}
	}
	args = append(args, q.TopK)
	query := `
		SELECT c.id, c.document_id, d.name, c.seq, c.content,
		       1 - (c.embedding <=> $1) AS similarity,
		       c.visibility, d.ctime
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embed_model = $2 AND d.state = $3 AND ` + cond + `
		ORDER BY similarity DESC, d.ctime DESC, c.seq ASC
		LIMIT ` + placeholder(len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	matches := make([]*model.ChunkMatch, 0, q.TopK)
	for rows.Next() {
		var m model.ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.DocumentName, &m.Seq, &m.Content,
			&m.Similarity, &m.Visibility, &m.DocCtime); err != nil {
			return nil, err
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	const query = `DELETE FROM document_chunks WHERE document_id = $1`
	res, err := r.db.ExecContext(ctx, query, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	const query = `SELECT COUNT(1) FROM document_chunks WHERE document_id = $1`
	row := r.db.QueryRowContext(ctx, query, documentID)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
