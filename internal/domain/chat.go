package domain

// Role identifies the author of a ChatTurn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleModel marks a turn produced by the assistant.
	RoleModel Role = "model"
)

// ChatTurn is one normalized entry of the conversation transcript.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
