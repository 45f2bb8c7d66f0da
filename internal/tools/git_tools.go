package tools

import (
	"context"
	"errors"

	"taskpilot/internal/git"
)

const defaultSavePointLimit = 10

func requireRepo(c *Call) (*git.Repo, *Result) {
	if c.Workspace == nil || c.Workspace.Repo == nil {
		r := fail("Git is not available. Is a project folder selected?")
		return nil, &r
	}
	return c.Workspace.Repo, nil
}

func createSavePoint(_ context.Context, c *Call) Result {
	repo, res := requireRepo(c)
	if res != nil {
		return *res
	}
	if !repo.IsRepo() {
		return fail("Not a git repository. Initialize one first from the History tab.")
	}
	hash, err := repo.CreateSavePoint(c.Args.String("message"))
	if err != nil {
		return fail("%v", err)
	}
	if hash == "" {
		return ok(map[string]any{"hash": "(no changes to commit)"})
	}
	c.StateChanged(DomainHistory, nil)
	return ok(map[string]any{"hash": hash})
}

func listSavePoints(_ context.Context, c *Call) Result {
	repo, res := requireRepo(c)
	if res != nil {
		return *res
	}
	if !repo.IsRepo() {
		return fail("Not a git repository")
	}
	return ok(repo.History(c.Args.Int("limit", defaultSavePointLimit)))
}

func restoreSavePoint(_ context.Context, c *Call) Result {
	repo, res := requireRepo(c)
	if res != nil {
		return *res
	}
	hash := c.Args.String("hash")
	if err := repo.Restore(hash); err != nil {
		if errors.Is(err, git.ErrUncommittedChanges) {
			return Result{
				Error: "Cannot restore while there are uncommitted changes. Create a save point first.",
				Code:  CodeUncommittedChanges,
			}
		}
		return fail("%v", err)
	}
	historyRewritten(c)
	return ok(map[string]any{"hash": hash})
}

func revertSavePoint(_ context.Context, c *Call) Result {
	repo, res := requireRepo(c)
	if res != nil {
		return *res
	}
	hash := c.Args.String("hash")
	if err := repo.Revert(hash); err != nil {
		if errors.Is(err, git.ErrRevertConflict) {
			return Result{
				Error: "Revert of " + hash + " conflicts with later changes and was aborted. The project is unchanged.",
				Code:  CodeRevertConflict,
			}
		}
		return fail("%v", err)
	}
	historyRewritten(c)
	return ok(map[string]any{"hash": hash})
}

// historyRewritten notifies every domain a working tree reset can touch;
// the board lives inside the repository.
func historyRewritten(c *Call) {
	c.StateChanged(DomainHistory, nil)
	c.StateChanged(DomainFiles, nil)
	c.StateChanged(DomainTasks, nil)
}

func getChanges(_ context.Context, c *Call) Result {
	repo, res := requireRepo(c)
	if res != nil {
		return *res
	}
	if !repo.IsRepo() {
		return fail("Not a git repository")
	}
	status, err := repo.Status()
	if err != nil {
		return fail("%v", err)
	}
	return ok(status)
}
