// AngelaMos | 2026
// presence.go

package call

import (
	"context"
)

// PresenceBridge adapts the Manager to the channel hub, which only deals in
// session and user IDs.
type PresenceBridge struct {
	manager *Manager
}

func NewPresenceBridge(m *Manager) *PresenceBridge {
	return &PresenceBridge{manager: m}
}

func (b *PresenceBridge) Authorize(
	ctx context.Context,
	sessionID, userID string,
) (string, error) {
	s, err := b.manager.Authorize(ctx, sessionID, userID)
	if err != nil {
		return "", err
	}
	return s.PeerOf(userID), nil
}

func (b *PresenceBridge) MarkConnected(ctx context.Context, sessionID, userID string) error {
	_, err := b.manager.MarkConnected(ctx, sessionID, userID)
	return err
}

func (b *PresenceBridge) Heartbeat(ctx context.Context, sessionID, userID string) error {
	return b.manager.Heartbeat(ctx, sessionID, userID)
}

func (b *PresenceBridge) Leave(ctx context.Context, sessionID, userID string) error {
	_, err := b.manager.Leave(ctx, sessionID, userID)
	return err
}
