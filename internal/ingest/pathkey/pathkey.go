// Package pathkey canonicalizes filesystem paths and derives the stable
// digests used as dedupe/idempotency keys across the ingestion core.
//
// Grounded on original_source/ferrex-core/src/scan/fs_watch/mod.rs
// (sanitize_path, encode_hash) and the teacher's filepath-based path
// handling in internal/scanner/parser.go.
package pathkey

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a relative path's ".." components would
// walk outside the supplied root.
var ErrPathEscape = errors.New("pathkey: path escapes root")

// Normalize converts path to a canonical absolute form: it resolves "."
// and ".." components, collapses repeated separators, and lowercases a
// leading Windows drive letter. Normalize is idempotent: calling it twice
// yields the same result as calling it once.
func Normalize(path string) string {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		clean = filepath.Join(string(filepath.Separator), clean)
	}
	if len(clean) >= 2 && clean[1] == ':' {
		clean = strings.ToLower(clean[:1]) + clean[1:]
	}
	return clean
}

// Clamp resolves rel against root, rejecting any ".." component that would
// walk outside root, and returns the resulting absolute path. It mirrors
// the per-event path sanitation in spec.md §4.5.3.
func Clamp(root, rel string) (string, error) {
	root = Normalize(root)
	rel = filepath.ToSlash(rel)

	var stack []string
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", ErrPathEscape
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}

	return filepath.Join(append([]string{root}, stack...)...), nil
}

// Hash derives a stable 128-bit digest over the supplied parts, encoded as
// URL-safe base64 without padding. It is used for idempotency keys
// (FileSystemEvent) and dedupe keys (OrchestratorJob).
func Hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
