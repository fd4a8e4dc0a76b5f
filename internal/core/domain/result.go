package domain

import "time"

// RecipeResult is the outcome of running a recipe: the exit code of the last
// command attempted and the captured output streams.
type RecipeResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Ok reports whether every recipe line exited zero.
func (r *RecipeResult) Ok() bool {
	return r.ExitCode == 0
}

// FileInfo is the subset of file metadata staleness decisions need, obtained
// from whichever node owns the file.
type FileInfo struct {
	Exists  bool
	ModTime time.Time
	Size    int64
}
