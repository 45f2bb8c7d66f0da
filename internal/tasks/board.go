package tasks

import (
	"slices"
	"time"
)

// ColumnID names one of the fixed kanban columns.
type ColumnID string

const (
	ColumnDraft      ColumnID = "draft"
	ColumnPlanning   ColumnID = "planning"
	ColumnInProgress ColumnID = "in-progress"
	ColumnReview     ColumnID = "review"
	ColumnDone       ColumnID = "done"
)

// Columns lists every column in display order.
var Columns = []ColumnID{ColumnDraft, ColumnPlanning, ColumnInProgress, ColumnReview, ColumnDone}

// ValidColumn reports whether c is one of the fixed columns.
func ValidColumn(c string) bool {
	return slices.Contains(Columns, ColumnID(c))
}

// TaskMeta is the per-task record kept in board.json.
type TaskMeta struct {
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

// Board is the persisted kanban state. Markdown bodies live in separate files.
type Board struct {
	Columns map[ColumnID][]string `json:"columns"`
	Tasks   map[string]TaskMeta   `json:"tasks"`
}

// NewBoard returns the canonical empty board.
func NewBoard() *Board {
	b := &Board{
		Columns: make(map[ColumnID][]string, len(Columns)),
		Tasks:   make(map[string]TaskMeta),
	}
	for _, c := range Columns {
		b.Columns[c] = []string{}
	}
	return b
}

// Has reports whether the task exists.
func (b *Board) Has(id string) bool {
	_, ok := b.Tasks[id]
	return ok
}

// Remove drops id from every column. It does not touch Tasks.
func (b *Board) Remove(id string) {
	for _, c := range Columns {
		b.Columns[c] = slices.DeleteFunc(b.Columns[c], func(v string) bool { return v == id })
	}
}

// Place moves id to the end of column, removing it from all others first.
func (b *Board) Place(id string, column ColumnID) {
	b.Remove(id)
	b.Columns[column] = append(b.Columns[column], id)
}

// Add creates a task in column.
func (b *Board) Add(id, title string, column ColumnID, now time.Time) {
	b.Tasks[id] = TaskMeta{Title: title, CreatedAt: FormatTimestamp(now)}
	b.Place(id, column)
}

// Delete removes the task and every column reference to it.
func (b *Board) Delete(id string) {
	b.Remove(id)
	delete(b.Tasks, id)
}

// ColumnOf returns the first column holding id.
func (b *Board) ColumnOf(id string) (ColumnID, bool) {
	for _, c := range Columns {
		if slices.Contains(b.Columns[c], id) {
			return c, true
		}
	}
	return "", false
}

// FormatTimestamp renders t as an ISO-8601 UTC timestamp with milliseconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
