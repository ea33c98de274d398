package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionRequired is returned when a conversation operation has no session id
var ErrSessionRequired = errors.New("session id required")

// Role identifies who produced a turn
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Turn is one message in a conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HumanTurn and AITurn are shorthands used by the pipeline
func HumanTurn(content string) Turn { return Turn{Role: RoleHuman, Content: content} }
func AITurn(content string) Turn    { return Turn{Role: RoleAI, Content: content} }

// String renders the turn the way it is fed back to the model.
func (t Turn) String() string { return fmt.Sprintf("%s: %s", t.Role, t.Content) }

// RenderHistory joins turns as "<role>: <content>" lines.
func RenderHistory(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.String())
	}
	return strings.Join(lines, "\n")
}
