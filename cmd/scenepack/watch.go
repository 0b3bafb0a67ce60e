package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/scenepack/internal/resource"
)

// settle is how long the watcher waits for a burst of events to end.
const settle = 200 * time.Millisecond

// watcher rebuilds the scenes below dir whenever they or a file next to
// them changes.
type watcher struct {
	dir   string
	out   string
	cache *resource.FileCache
	build func(ctx context.Context, src string)
	log   *zap.Logger
}

func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	out, _ := filepath.Abs(w.out)
	scenes, err := w.scan(fw, out)
	if err != nil {
		return err
	}
	for _, s := range scenes {
		w.build(ctx, s)
	}
	w.log.Info("watching", zap.String("dir", w.dir), zap.Int("scenes", len(scenes)))

	pending := make(map[string]bool)
	timer := time.NewTimer(settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if within(out, event.Name) || isHidden(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					if err := fw.Add(event.Name); err != nil {
						w.log.Warn("cannot watch directory", zap.String("dir", event.Name), zap.Error(err))
					}
					continue
				}
			}
			w.cache.Forget(event.Name)
			pending[event.Name] = true
			timer.Reset(settle)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			for _, s := range affected(pending) {
				w.build(ctx, s)
			}
			clear(pending)
		}
	}
}

// scan adds every directory below dir except out to fw and returns the
// scenes found.
func (w *watcher) scan(fw *fsnotify.Watcher, out string) ([]string, error) {
	var scenes []string
	err := filepath.WalkDir(w.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != w.dir && (within(out, p) || isHidden(p)) {
				return filepath.SkipDir
			}
			return fw.Add(p)
		}
		if isScene(p) {
			scenes = append(scenes, p)
		}
		return nil
	})
	return scenes, err
}

// affected returns the scenes to rebuild for a set of changed files. A
// changed resource rebuilds the scenes in its directory.
func affected(changed map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for p := range changed {
		if isScene(p) {
			if _, err := os.Stat(p); err == nil {
				add(p)
			}
			continue
		}
		entries, err := os.ReadDir(filepath.Dir(p))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && isScene(e.Name()) {
				add(filepath.Join(filepath.Dir(p), e.Name()))
			}
		}
	}
	return out
}

func isScene(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".gltf", ".glb":
		return true
	}
	return false
}

func isHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}

// within reports whether p is dir or below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
