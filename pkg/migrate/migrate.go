package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is relative to the repository root.
const DefaultDir = "pkg/migrate/migrations"

// Step is one migration touched by a command, or listed by Status.
type Step struct {
	Version   int64
	Path      string
	Direction string
	State     string
	Duration  time.Duration
	AppliedAt time.Time
}

// Runner applies the SQL files in a directory. The files use Postgres types
// (UUID, JSONB, partial indexes) so the dialect is fixed.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, dir string) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %s: %w", dir, err)
	}
	return &Runner{provider: p}, nil
}

func (r *Runner) Up(ctx context.Context) ([]Step, error) {
	res, err := r.provider.Up(ctx)
	return steps(res), wrap("up", err)
}

// Down rolls back the most recent migration only.
func (r *Runner) Down(ctx context.Context) ([]Step, error) {
	res, err := r.provider.Down(ctx)
	if res == nil {
		return nil, wrap("down", err)
	}
	return steps([]*goose.MigrationResult{res}), wrap("down", err)
}

func (r *Runner) Status(ctx context.Context) ([]Step, error) {
	list, err := r.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]Step, 0, len(list))
	for _, s := range list {
		out = append(out, Step{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			State:     string(s.State),
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// To moves the schema up or down until its version equals target.
func (r *Runner) To(ctx context.Context, target int64) ([]Step, error) {
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		res, err := r.provider.UpTo(ctx, target)
		return steps(res), wrap(fmt.Sprintf("up-to %d", target), err)
	default:
		res, err := r.provider.DownTo(ctx, target)
		return steps(res), wrap(fmt.Sprintf("down-to %d", target), err)
	}
}

// Run dispatches a command name from the migrate CLI.
func (r *Runner) Run(ctx context.Context, command string) ([]Step, error) {
	switch command {
	case "up":
		return r.Up(ctx)
	case "down":
		return r.Down(ctx)
	case "status":
		return r.Status(ctx)
	default:
		return nil, fmt.Errorf("unknown migrate command %q", command)
	}
}

// ParseVersion parses a YYYYMMDDHHMMSS migration version.
func ParseVersion(v string) (int64, error) {
	if !versionRe.MatchString(v) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", v)
	}
	return strconv.ParseInt(v, 10, 64)
}

func steps(results []*goose.MigrationResult) []Step {
	out := make([]Step, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Step{
			Version:   res.Source.Version,
			Path:      res.Source.Path,
			Direction: res.Direction,
			Duration:  res.Duration,
		})
	}
	return out
}

func wrap(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
