package fswatch

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// classifyOp maps an fsnotify.Op to the core Kind (spec.md §4.5.2).
// fsnotify collapses notify's ModifyKind::Name(RenameMode::{From,To,Both})
// granularity into a single Rename bit; classifyOp maps that bit to Moved
// rather than inventing finer-grained rename tracking fsnotify cannot
// report.
func classifyOp(op fsnotify.Op) Kind {
	switch {
	case op&fsnotify.Create != 0:
		return Created
	case op&fsnotify.Write != 0, op&fsnotify.Chmod != 0:
		return Modified
	case op&fsnotify.Rename != 0:
		return Moved
	case op&fsnotify.Remove != 0:
		return Deleted
	default:
		return Overflow
	}
}

// isHiddenOrTemp filters out dotfiles and editor/download temp files, the
// same skip list the teacher's handleEvent applies before debouncing.
func isHiddenOrTemp(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasSuffix(base, ".part") ||
		strings.HasSuffix(base, ".crdownload")
}
