package tools

import (
	"context"
	"errors"

	"taskpilot/internal/files"
	"taskpilot/internal/sandbox"
)

func requireFolder(c *Call) (string, *Result) {
	if c.Workspace == nil || c.Workspace.Root == "" {
		r := fail("No project folder selected")
		return "", &r
	}
	return c.Workspace.Root, nil
}

func fileFailure(err error) Result {
	if errors.Is(err, sandbox.ErrOutsideProject) {
		return fail("Path outside project folder")
	}
	return fail("%v", err)
}

func readFile(_ context.Context, c *Call) Result {
	root, res := requireFolder(c)
	if res != nil {
		return *res
	}
	path := c.Args.String("path")
	content, err := files.Read(root, path)
	if err != nil {
		return fileFailure(err)
	}
	return ok(map[string]any{"path": path, "content": content})
}

func writeFile(_ context.Context, c *Call) Result {
	root, res := requireFolder(c)
	if res != nil {
		return *res
	}
	path := c.Args.String("path")
	if err := files.Write(root, path, c.Args.String("content")); err != nil {
		return fileFailure(err)
	}
	c.StateChanged(DomainFiles, nil)
	return ok(map[string]any{"path": path})
}

func listFiles(_ context.Context, c *Call) Result {
	root, res := requireFolder(c)
	if res != nil {
		return *res
	}
	dir := c.Args.StringOr("path", ".")
	entries, err := files.List(root, dir)
	if err != nil {
		return fileFailure(err)
	}
	return ok(map[string]any{"path": dir, "files": entries})
}

func deleteFile(_ context.Context, c *Call) Result {
	root, res := requireFolder(c)
	if res != nil {
		return *res
	}
	path := c.Args.String("path")
	if err := files.Delete(root, path); err != nil {
		return fileFailure(err)
	}
	c.StateChanged(DomainFiles, nil)
	return ok(map[string]any{"path": path})
}
