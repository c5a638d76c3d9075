package settings

import (
	"context"
	"fmt"
)

// Source is the raw settings backend a Resolver reads from.
type Source interface {
	Load(ctx context.Context, chatID int64) (map[string]string, error)
	Save(ctx context.Context, chatID int64, key, value string) error
}

// Resolver hands out fresh GroupSettings snapshots. It holds no cached state;
// every call reads the backend.
type Resolver struct {
	source Source
}

// NewResolver creates a Resolver over the given source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// GetGroupSettings returns the current snapshot for a chat. Backend failures
// are returned; malformed stored values are not (they resolve to defaults).
func (r *Resolver) GetGroupSettings(ctx context.Context, chatID int64) (GroupSettings, error) {
	raw, err := r.source.Load(ctx, chatID)
	if err != nil {
		return GroupSettings{}, err
	}
	return Resolve(chatID, raw), nil
}

// UpdateSetting validates and persists one setting. Invalid input is rejected
// before it reaches the store so stored rows are always parseable.
func (r *Resolver) UpdateSetting(ctx context.Context, chatID int64, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	if err := r.source.Save(ctx, chatID, key, value); err != nil {
		return fmt.Errorf("settings: update %s for chat %d: %w", key, chatID, err)
	}
	return nil
}
