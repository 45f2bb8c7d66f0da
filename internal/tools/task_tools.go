package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskpilot/internal/sandbox"
	"taskpilot/internal/tasks"
)

var errTaskNotFound = errors.New("task not found")

type taskSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func requireBoard(c *Call) (*tasks.Store, *Result) {
	if c.Workspace == nil || c.Workspace.Board == nil {
		r := fail("Task manager not available")
		return nil, &r
	}
	return c.Workspace.Board, nil
}

// taskID returns the validated task_id argument.
func taskID(c *Call) (string, *Result) {
	id := c.Args.String("task_id")
	if err := sandbox.ValidateTaskID(id); err != nil {
		r := fail("Invalid task ID: %s", id)
		return "", &r
	}
	return id, nil
}

func taskFailure(id string, err error) Result {
	if errors.Is(err, errTaskNotFound) {
		return fail("Task %s not found", id)
	}
	return fail("%v", err)
}

func createTask(_ context.Context, c *Call) Result {
	store, res := requireBoard(c)
	if res != nil {
		return *res
	}
	title := c.Args.String("title")
	column := c.Args.StringOr("column", string(tasks.ColumnDraft))
	if !tasks.ValidColumn(column) {
		return fail("Invalid column: %s", column)
	}
	markdown := c.Args.String("markdown")
	if markdown == "" {
		markdown = fmt.Sprintf("# %s\n\n", title)
	}

	var id string
	err := store.Update(func(b *tasks.Board) error {
		id = tasks.GenerateID(b)
		if err := store.WriteMarkdown(id, markdown); err != nil {
			return fmt.Errorf("write task markdown: %w", err)
		}
		b.Add(id, title, tasks.ColumnID(column), time.Now())
		return nil
	})
	if err != nil {
		if id != "" {
			if derr := store.DeleteMarkdown(id); derr != nil {
				c.logger().Warn("failed to remove orphaned task markdown", "task", id, "error", derr)
			}
		}
		return fail("%v", err)
	}

	c.StateChanged(DomainTasks, nil)
	return ok(map[string]any{"id": id, "title": title, "column": column})
}

func editTask(_ context.Context, c *Call) Result {
	store, res := requireBoard(c)
	if res != nil {
		return *res
	}
	id, res := taskID(c)
	if res != nil {
		return *res
	}
	title := c.Args.String("title")
	err := store.Update(func(b *tasks.Board) error {
		meta, found := b.Tasks[id]
		if !found {
			return errTaskNotFound
		}
		meta.Title = title
		b.Tasks[id] = meta
		return nil
	})
	if err != nil {
		return taskFailure(id, err)
	}
	c.StateChanged(DomainTasks, nil)
	return ok(map[string]any{"id": id, "title": title})
}

func deleteTask(_ context.Context, c *Call) Result {
	store, res := requireBoard(c)
	if res != nil {
		return *res
	}
	id, res := taskID(c)
	if res != nil {
		return *res
	}
	err := store.Update(func(b *tasks.Board) error {
		if !b.Has(id) {
			return errTaskNotFound
		}
		b.Delete(id)
		return nil
	})
	if err != nil {
		return taskFailure(id, err)
	}
	if err := store.DeleteMarkdown(id); err != nil {
		return fail("Task %s removed from board but its markdown could not be deleted: %v", id, err)
	}
	c.StateChanged(DomainTasks, nil)
	return ok(map[string]any{"id": id})
}

func moveTask(_ context.Context, c *Call) Result {
	store, res := requireBoard(c)
	if res != nil {
		return *res
	}
	id, res := taskID(c)
	if res != nil {
		return *res
	}
	column := c.Args.String("column")
	if !tasks.ValidColumn(column) {
		return fail("Invalid column: %s", column)
	}
	err := store.Update(func(b *tasks.Board) error {
		if !b.Has(id) {
			return errTaskNotFound
		}
		b.Place(id, tasks.ColumnID(column))
		return nil
	})
	if err != nil {
		return taskFailure(id, err)
	}
	c.StateChanged(DomainTasks, nil)
	return ok(map[string]any{"id": id, "column": column})
}

func listTasks(_ context.Context, c *Call) Result {
	store, res := requireBoard(c)
	if res != nil {
		return *res
	}
	board, err := store.LoadBoard()
	if err != nil {
		return fail("%v", err)
	}
	grouped := make(map[tasks.ColumnID][]taskSummary, len(tasks.Columns))
	for _, col := range tasks.Columns {
		grouped[col] = []taskSummary{}
		for _, id := range board.Columns[col] {
			if meta, found := board.Tasks[id]; found {
				grouped[col] = append(grouped[col], taskSummary{ID: id, Title: meta.Title})
			}
		}
	}
	return ok(grouped)
}

func readTask(_ context.Context, c *Call) Result {
	store, res := requireBoard(c)
	if res != nil {
		return *res
	}
	id, res := taskID(c)
	if res != nil {
		return *res
	}
	board, err := store.LoadBoard()
	if err != nil {
		return fail("%v", err)
	}
	meta, found := board.Tasks[id]
	if !found {
		return fail("Task %s not found", id)
	}
	markdown, err := store.ReadMarkdown(id)
	if err != nil {
		return fail("%v", err)
	}
	return ok(map[string]any{"id": id, "title": meta.Title, "markdown": markdown})
}
