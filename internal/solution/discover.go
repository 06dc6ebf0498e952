package solution

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"slnsync/internal/errors"
	"slnsync/internal/notify"
	"slnsync/internal/ordering"
	"slnsync/internal/paths"
)

// scan is a detached subtree built by discovery, not yet visible in the
// solution.
type scan struct {
	folders  []*Folder // parents before children
	files    []*File
	contents [][]byte // parallel to files
}

// discover fills root's entries from the directory dir and reads every file.
// Nothing is registered; on error root must be discarded.
func (e *Engine) discover(ctx context.Context, root holder, dir string) (*scan, error) {
	sc := &scan{}
	if f, ok := root.(*Folder); ok {
		sc.folders = append(sc.folders, f)
	}

	type pending struct {
		h   holder
		dir string
	}
	stack := []pending{{root, dir}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(errors.Cancelled, "discovery cancelled", err).WithPath(dir)
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		infos, err := afero.ReadDir(e.fs, cur.dir)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cur.dir, err)
		}
		var subdirs []pending
		for _, fi := range infos {
			name := fi.Name()
			var en Entry
			if fi.IsDir() {
				if slices.Contains(e.opts.IgnoreDirs, name) {
					continue
				}
				en = &Folder{sol: e.sol, id: newID(), name: name, path: paths.Child(cur.dir, name), parentID: cur.h.ID()}
			} else {
				en = &File{sol: e.sol, id: newID(), name: name, path: paths.Child(cur.dir, name), parentID: cur.h.ID()}
			}

			l := cur.h.list()
			idx, found := ordering.Search(*l, entryKey, entryKey(en))
			if found {
				// two names equal under case folding on a case-sensitive disk
				e.warnInconsistent("discover", entryPath(en), "name collides with an existing sibling, skipped")
				continue
			}
			*l = slices.Insert(*l, idx, en)

			switch en := en.(type) {
			case *Folder:
				sc.folders = append(sc.folders, en)
				subdirs = append(subdirs, pending{en, en.path})
			case *File:
				sc.files = append(sc.files, en)
			}
		}
		// reversed so folders are visited in order
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	sc.contents = make([][]byte, len(sc.files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrentReads)
	for i, f := range sc.files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := afero.ReadFile(e.fs, f.path)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.path, err)
			}
			sc.contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.New(errors.Cancelled, "discovery cancelled", ctxErr).WithPath(dir)
		}
		return nil, err
	}
	return sc, nil
}

// addedEvents builds the notifications for a freshly registered scan.
func (e *Engine) addedEvents(sc *scan, project string) []notify.Event {
	events := make([]notify.Event, 0, len(sc.folders)+len(sc.files))
	for _, f := range sc.folders {
		ev := notify.NewEvent(notify.DirectoryAdded, f.id, f.path)
		ev.Project = project
		events = append(events, ev)
	}
	for i, f := range sc.files {
		ev := notify.Added(f.id, f.path, sc.contents[i])
		ev.Project = project
		events = append(events, ev)
	}
	return events
}
