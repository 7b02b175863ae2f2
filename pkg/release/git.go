package release

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git is the version-control capability the release coordinator consumes.
// Tagging, branching and tree reads only; no working-tree mutation.
type Git interface {
	Tags(ctx context.Context, pattern string) ([]string, error)
	CreateTag(ctx context.Context, name, message string) error
	CreateBranch(ctx context.Context, name string) error
	Push(ctx context.Context, ref string) error
	ShowFile(ctx context.Context, ref, path string) ([]byte, error)
	ChangedFiles(ctx context.Context, refA, refB string) ([]string, error)
}

// ExecGit runs the git binary against a repository directory.
type ExecGit struct {
	dir string
}

func NewExecGit(dir string) *ExecGit {
	return &ExecGit{dir: dir}
}

func (g *ExecGit) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.dir}, args...)...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}

	return out, nil
}

func (g *ExecGit) Tags(ctx context.Context, pattern string) ([]string, error) {
	out, err := g.run(ctx, "tag", "-l", pattern)
	if err != nil {
		return nil, err
	}

	var tags []string

	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tags = append(tags, line)
		}
	}

	return tags, nil
}

func (g *ExecGit) CreateTag(ctx context.Context, name, message string) error {
	_, err := g.run(ctx, "tag", "-a", name, "-m", message)

	return err
}

func (g *ExecGit) CreateBranch(ctx context.Context, name string) error {
	_, err := g.run(ctx, "branch", name)

	return err
}

func (g *ExecGit) Push(ctx context.Context, ref string) error {
	_, err := g.run(ctx, "push", "origin", ref)

	return err
}

func (g *ExecGit) ShowFile(ctx context.Context, ref, path string) ([]byte, error) {
	return g.run(ctx, "show", ref+":"+path)
}

func (g *ExecGit) ChangedFiles(ctx context.Context, refA, refB string) ([]string, error) {
	out, err := g.run(ctx, "diff", "--name-only", refA, refB)
	if err != nil {
		return nil, err
	}

	var files []string

	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}

	return files, nil
}
