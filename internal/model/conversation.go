package model

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

type ConversationTurn struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Ctime     int64  `json:"ctime"`
}
