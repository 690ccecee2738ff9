package health

import (
	"context"
	"fmt"
	"os"
)

// DirWritable returns a checker that creates and removes a probe file in dir.
func DirWritable(name, dir string) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %q: %w", dir, err)
			}
			f, err := os.CreateTemp(dir, ".readyz-*")
			if err != nil {
				return fmt.Errorf("write probe in %q: %w", dir, err)
			}
			path := f.Name()
			f.Close()
			return os.Remove(path)
		},
	}
}

// Pinger is anything that answers a liveness ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a checker backed by p.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}
