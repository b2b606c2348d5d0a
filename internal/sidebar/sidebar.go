// Package sidebar projects store state into the displayed peer list. Pure
// functions only; recomputed whenever an input changes.
package sidebar

import (
	"sort"
	"strings"

	"chat-core/internal/models"
	"chat-core/internal/store"
)

// Order sorts peers for display: unread peers first, then most recent last
// message first. Ties keep the stable input order.
func Order(users []models.User, lastMessages map[string]store.LastMessage, unread map[string]bool) []models.User {
	out := make([]models.User, len(users))
	copy(out, users)

	sort.SliceStable(out, func(i, j int) bool {
		ui, uj := unread[out[i].ID], unread[out[j].ID]
		if ui != uj {
			return ui
		}
		return lastMessages[out[i].ID].Time.After(lastMessages[out[j].ID].Time)
	})
	return out
}

// Filter keeps users whose display name contains the query,
// case-insensitively. An empty query keeps everyone.
func Filter(users []models.User, query string) []models.User {
	if query == "" {
		out := make([]models.User, len(users))
		copy(out, users)
		return out
	}

	needle := strings.ToLower(query)
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), needle) {
			out = append(out, u)
		}
	}
	return out
}
