package sqlite

import (
	"database/sql"

	"github.com/example/foreman/internal/ports/secondary"
)

// NewStore wires every SQLite repository onto one connection.
func NewStore(db *sql.DB) secondary.Store {
	return secondary.Store{
		Plans:       NewPlanRepository(db),
		Sessions:    NewSessionRepository(db),
		Tracks:      NewTrackRepository(db),
		Tasks:       NewTaskRepository(db),
		Checkpoints: NewCheckpointRepository(db),
		Escalations: NewEscalationRepository(db),
		Council:     NewCouncilRepository(db),
		Merges:      NewMergeRepository(db),
	}
}
