package source

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// MarkdownWalker enumerates markdown files under a folder tree.
type MarkdownWalker struct {
	Folder string
}

// EstimatedTotal is unknown until the walk finishes.
func (w *MarkdownWalker) EstimatedTotal() int { return 0 }

// Documents walks the folder and yields one document per markdown file.
// Document IDs are folder-relative paths so checkpoints survive moves of
// the folder itself.
func (w *MarkdownWalker) Documents(ctx context.Context) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		walkFn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				if !yield(itemErr(path, err)) {
					return filepath.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".md" && ext != ".markdown" {
				return nil
			}

			rel, relErr := filepath.Rel(w.Folder, path)
			if relErr != nil {
				rel = path
			}

			content, readErr := os.ReadFile(path)
			if readErr != nil {
				if !yield(itemErr(rel, readErr)) {
					return filepath.SkipAll
				}
				return nil
			}

			doc := &Document{
				ID:      rel,
				Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Content: string(content),
			}
			if !yield(Item{Doc: doc}) {
				return filepath.SkipAll
			}
			return nil
		}

		if err := filepath.WalkDir(w.Folder, walkFn); err != nil && err != filepath.SkipAll {
			yield(itemErr(w.Folder, err))
		}
	}
}
