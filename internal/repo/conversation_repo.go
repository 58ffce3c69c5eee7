package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
)

var turnColumns = []string{"id", "user_id", "session_id", "role", "content", "ctime"}

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Insert(ctx context.Context, turn *model.ConversationTurn) error {
	data := map[string]interface{}{
		"id":         turn.ID,
		"user_id":    turn.UserID,
		"session_id": turn.SessionID,
		"role":       turn.Role,
		"content":    turn.Content,
		"ctime":      turn.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("conversation_turns", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListRecent returns up to limit turns at or after cutoff, newest first.
// Callers reverse the slice when they need chronological order.
func (r *ConversationRepo) ListRecent(ctx context.Context, userID, sessionID string, cutoff int64, limit int) ([]*model.ConversationTurn, error) {
	where := map[string]interface{}{
		"user_id":       userID,
		"session_id":    sessionID,
		"_custom_ctime": builder.Custom("ctime >= ?", cutoff),
		"_orderby":      "ctime desc, id desc",
		"_limit":        []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("conversation_turns", where, turnColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	turns := make([]*model.ConversationTurn, 0)
	for rows.Next() {
		var turn model.ConversationTurn
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.SessionID, &turn.Role, &turn.Content, &turn.Ctime); err != nil {
			return nil, err
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

func (r *ConversationRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM conversation_turns WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ConversationRepo) DeleteBySession(ctx context.Context, userID, sessionID string) (int64, error) {
	const query = `DELETE FROM conversation_turns WHERE user_id = $1 AND session_id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
