package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/sessionarchive/objstore"
	"github.com/GoCodeAlone/sessionarchive/sessionstore"
	"golang.org/x/sync/errgroup"
)

const defaultParallel = 4

// errAbsent is returned by exists when at least one session has no archive.
var errAbsent = errors.New("one or more sessions have no remote archive")

func newFlagSet(name, args, summary string, common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: sessionctl %s [options] %s\n\n%s\n\nOptions:\n", name, args, summary) //nolint:gosec // G705: CLI usage output
		fs.PrintDefaults()
	}
	return fs
}

func requireSessions(fs *flag.FlagSet) ([]string, error) {
	if fs.NArg() < 1 {
		fs.Usage()
		return nil, fmt.Errorf("at least one session id is required")
	}
	return fs.Args(), nil
}

func runExists(args []string) error {
	var common commonFlags
	fs := newFlagSet("exists", "<session>...", "Report whether each session has a remote archive.", &common)
	detailed := fs.Bool("detailed", false, "Distinguish probe failures from absent archives")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := requireSessions(fs)
	if err != nil {
		return err
	}

	return withEnv(&common, func(ctx context.Context, e *env) error {
		absent := 0
		for _, id := range ids {
			var state sessionstore.Presence
			_ = e.traced(ctx, sessionstore.OpExists, id, func(ctx context.Context) error {
				if !*detailed {
					state = sessionstore.Absent
					if e.store.SessionExists(ctx, id) {
						state = sessionstore.Present
					}
					return nil
				}
				var perr error
				state, perr = e.store.Probe(ctx, id)
				if perr != nil {
					e.logger.Warn("probe failed", "session", id, "error", perr)
				}
				return perr
			})
			if state != sessionstore.Present {
				absent++
			}
			printf("%s\t%s\n", id, state)
		}
		if absent > 0 {
			return errAbsent
		}
		return nil
	})
}

// forEachSession runs op for every id with at most parallel in flight and
// returns the joined failures. One failing session does not stop the others.
func forEachSession(ctx context.Context, ids []string, parallel int, op func(context.Context, string) error) error {
	if parallel < 1 {
		parallel = 1
	}
	var g errgroup.Group
	g.SetLimit(parallel)

	var mu sync.Mutex
	var errs []error
	for _, id := range ids {
		g.Go(func() error {
			if err := op(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func runSave(args []string) error {
	var common commonFlags
	fs := newFlagSet("save", "<session>...", "Upload <local-dir>/<session>.zip for each session, replacing any existing archive.", &common)
	parallel := fs.Int("parallel", defaultParallel, "Maximum concurrent uploads")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := requireSessions(fs)
	if err != nil {
		return err
	}

	return withEnv(&common, func(ctx context.Context, e *env) error {
		return forEachSession(ctx, ids, *parallel, func(ctx context.Context, id string) error {
			err := e.traced(ctx, sessionstore.OpSave, id, func(ctx context.Context) error {
				return e.store.Save(ctx, id)
			})
			if err != nil {
				var missing *sessionstore.MissingArchiveError
				if errors.As(err, &missing) {
					e.logger.Warn("no staged archive", "session", id, "path", missing.Path)
				}
				return err
			}
			printf("saved %s -> %s\n", id, e.store.ObjectKey(id))
			return nil
		})
	})
}

func runExtract(args []string) error {
	var common commonFlags
	fs := newFlagSet("extract", "-o <path> <session>", "Download a session's archive to a local path.", &common)
	output := fs.String("o", "", "Destination file path (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("exactly one session id is required")
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("-o is required")
	}
	id := fs.Arg(0)

	return withEnv(&common, func(ctx context.Context, e *env) error {
		err := e.traced(ctx, sessionstore.OpExtract, id, func(ctx context.Context) error {
			return e.store.Extract(ctx, id, *output)
		})
		if err != nil {
			return err
		}
		printf("extracted %s -> %s\n", id, *output)
		return nil
	})
}

func runDelete(args []string) error {
	var common commonFlags
	fs := newFlagSet("delete", "<session>...", "Remove each session's remote archive. Absent archives are not an error.", &common)
	parallel := fs.Int("parallel", defaultParallel, "Maximum concurrent deletes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := requireSessions(fs)
	if err != nil {
		return err
	}

	return withEnv(&common, func(ctx context.Context, e *env) error {
		return forEachSession(ctx, ids, *parallel, func(ctx context.Context, id string) error {
			err := e.traced(ctx, sessionstore.OpDelete, id, func(ctx context.Context) error {
				return e.store.Delete(ctx, id)
			})
			if err != nil {
				return err
			}
			printf("deleted %s\n", id)
			return nil
		})
	})
}

func runKey(args []string) error {
	var common commonFlags
	fs := newFlagSet("key", "<session>...", "Print the object key each session maps to. No storage is contacted.", &common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := requireSessions(fs)
	if err != nil {
		return err
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	// Addressing is validated by sessionstore.New; the client is never used.
	store, err := sessionstore.New(cfg.SessionStoreConfig(objstore.NewMemoryClient()))
	if err != nil {
		return err
	}
	for _, id := range ids {
		printf("%s\n", store.ObjectKey(id))
	}
	return nil
}
