package runner

import (
	"context"

	"github.com/aether-frame/aether-frame/contracts"
)

// HistorySource is an optional capability a Handle may implement so
// SessionCoordinator can migrate chat history across an agent switch
// without the runner package depending on any specific provider SDK.
// Handles that do not implement it are treated as having no migratable
// history (switch proceeds, history is simply dropped — spec §4.7 treats
// this as a best-effort step, not a correctness requirement).
type HistorySource interface {
	ExtractHistory(ctx context.Context, runnerSessionID string) ([]contracts.HistoryEntry, error)
	InjectHistory(ctx context.Context, runnerSessionID string, history []contracts.HistoryEntry) error
}

// ExtractHistory extracts runnerSessionID's history from runnerID's handle
// if it implements HistorySource. Returns (nil, nil) when unsupported.
func (m *Manager) ExtractHistory(ctx context.Context, runnerID, runnerSessionID string) ([]contracts.HistoryEntry, error) {
	rc, ok := m.RunnerContext(runnerID)
	if !ok {
		return nil, nil
	}
	src, ok := rc.RunnerHandle.(HistorySource)
	if !ok {
		return nil, nil
	}
	return src.ExtractHistory(ctx, runnerSessionID)
}

// InjectHistory injects history into runnerSessionID on runnerID's handle if
// it implements HistorySource. No-op when unsupported or history is empty.
func (m *Manager) InjectHistory(ctx context.Context, runnerID, runnerSessionID string, history []contracts.HistoryEntry) error {
	if len(history) == 0 {
		return nil
	}
	rc, ok := m.RunnerContext(runnerID)
	if !ok {
		return nil
	}
	src, ok := rc.RunnerHandle.(HistorySource)
	if !ok {
		return nil
	}
	return src.InjectHistory(ctx, runnerSessionID, history)
}
