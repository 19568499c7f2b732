//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../mocks/mock_collaborators.go -package=mocks
package realtime

import (
	"context"

	"stealthy-realtime/internal/model"
)

// Verifier turns a previously issued session token into a user identity.
type Verifier interface {
	Verify(token string) (string, error)
}

// MembershipStore resolves chat membership. Unknown chats fail with
// apperrors.ErrNotFound.
type MembershipStore interface {
	MembersOf(ctx context.Context, chatID string) ([]string, error)
}

// MessageWriter persists a chat message under the id it was broadcast with.
// Senders outside the chat fail with apperrors.ErrPermission. The realtime
// path never waits on it.
type MessageWriter interface {
	Append(ctx context.Context, msg model.Message) error
}
