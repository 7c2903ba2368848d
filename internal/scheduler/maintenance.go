package scheduler

import (
	"log/slog"
	"time"

	"github.com/askely/concierge/internal/store"
)

// DefaultMaintenanceSchedule runs the maintenance job hourly.
const DefaultMaintenanceSchedule = "0 * * * *"

// DefaultStaleDialogueAge is how long an untouched review dialogue may sit
// before it is considered abandoned.
const DefaultStaleDialogueAge = 24 * time.Hour

// PruneStaleDialogues returns a job that deletes review dialogues with no
// activity for the given duration. Users simply start over on their next
// trigger message.
func PruneStaleDialogues(st store.Store, olderThan time.Duration) func() {
	if olderThan <= 0 {
		olderThan = DefaultStaleDialogueAge
	}
	return func() {
		pruned, err := st.PruneStaleDialogueStates(olderThan)
		if err != nil {
			slog.Error("Dialogue maintenance failed", "error", err)
			return
		}
		if pruned > 0 {
			slog.Info("Pruned abandoned review dialogues", "count", pruned, "older_than", olderThan)
		}
	}
}
