package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommitMessage is used for every backup commit.
const CommitMessage = "backup: update channel export"

// GitDestination keeps the export in a file of an existing local clone and
// pushes a commit whenever the content changes.
type GitDestination struct {
	repo   string
	file   string
	branch string
}

// NewGitDestination returns a destination writing file (relative to repo) on
// branch.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

// Name identifies the destination in logs.
func (d *GitDestination) Name() string {
	return "git:" + filepath.Join(d.repo, d.file) + "@" + d.branch
}

// Write commits and pushes data when it differs from the committed file.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote branch may not exist yet.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.file, err)
	}

	if _, err := d.git(ctx, "add", d.file); err != nil {
		return err
	}
	out, err := d.git(ctx, "status", "--porcelain", "--", d.file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		return nil
	}
	if _, err := d.git(ctx, "commit", "-m", CommitMessage, "--", d.file); err != nil {
		return err
	}
	if _, err := d.git(ctx, "push", "origin", d.branch); err != nil {
		return err
	}
	return nil
}

func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}
