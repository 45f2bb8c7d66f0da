package database

import (
	"context"

	"taskpilot/internal/tools"
)

// DispatchLog records dispatches for one project folder.
type DispatchLog struct {
	db      *Database
	project string
}

func NewDispatchLog(db *Database, project string) *DispatchLog {
	return &DispatchLog{db: db, project: project}
}

func (l *DispatchLog) RecordDispatch(ctx context.Context, d tools.Dispatch) error {
	return l.db.CreateDispatch(ctx, &DispatchRecord{
		ID:          d.ID,
		ProjectPath: l.project,
		TaskID:      d.TaskID,
		Agent:       d.Agent,
		Command:     d.Command,
		TerminalID:  d.TerminalID,
		AutoSaved:   d.AutoSaved,
		CreatedAt:   d.CreatedAt,
	})
}

// Recent lists this project's dispatches, newest first.
func (l *DispatchLog) Recent(ctx context.Context, taskID string, limit int) ([]*DispatchRecord, error) {
	return l.db.ListDispatches(ctx, l.project, taskID, limit)
}
