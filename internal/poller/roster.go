package poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bakkerme/persona-bot/internal/platform"
)

// Account is a tracked account resolved to its numeric id.
type Account struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

// ResolveRoster maps normalized usernames to accounts in one batched lookup.
// Usernames the platform does not know are logged and dropped.
func ResolveRoster(ctx context.Context, client platform.Client, usernames []string, logger *slog.Logger) ([]Account, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(usernames) == 0 {
		return nil, nil
	}
	users, err := client.LookupUsernames(ctx, usernames)
	if err != nil {
		return nil, fmt.Errorf("resolve tracked accounts: %w", err)
	}
	byName := make(map[string]platform.User, len(users))
	for _, u := range users {
		byName[platform.NormalizeUsername(u.Username)] = u
	}

	roster := make([]Account, 0, len(usernames))
	seen := make(map[string]struct{}, len(usernames))
	for _, raw := range usernames {
		name := platform.NormalizeUsername(raw)
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		u, ok := byName[name]
		if !ok {
			logger.Warn("tracked account not found", slog.String("username", name))
			continue
		}
		roster = append(roster, Account{Username: name, ID: u.ID})
	}
	return roster, nil
}
