// Package pathmap implements C1, the pure, stateless bijection between a
// source directory and its mirrored index directory (spec.md §4.1).
package pathmap

import (
	"path/filepath"
	"strings"
)

// IndexDBName is the per-directory SQLite file name (spec.md §6).
const IndexDBName = "_index.db"

// Mapper mirrors absolute source paths under a fixed index root.
type Mapper struct {
	indexRoot string
}

// New creates a Mapper rooted at indexRoot. indexRoot should itself be an
// absolute, canonical path.
func New(indexRoot string) *Mapper {
	return &Mapper{indexRoot: filepath.Clean(indexRoot)}
}

// SourceToIndexDir maps a canonical absolute source directory to its
// mirrored directory under the index root. On Unix this simply rebases the
// path; on any platform a leading volume name (Windows drive letter) is
// folded into a path component so the mapping stays a pure rebase.
func (m *Mapper) SourceToIndexDir(src string) string {
	clean := filepath.Clean(src)
	vol := filepath.VolumeName(clean)
	rest := strings.TrimPrefix(clean, vol)
	rest = strings.TrimPrefix(rest, string(filepath.Separator))

	if vol != "" {
		volComponent := strings.TrimSuffix(vol, ":")
		return filepath.Join(m.indexRoot, volComponent, rest)
	}
	return filepath.Join(m.indexRoot, rest)
}

// SourceToIndexDB returns the `_index.db` path for a source directory.
func (m *Mapper) SourceToIndexDB(src string) string {
	return filepath.Join(m.SourceToIndexDir(src), IndexDBName)
}

// IndexToSource inverts SourceToIndexDir. Returns "" if idx does not fall
// under this mapper's index root (cross-root / cross-drive lookups return
// the zero value rather than raising, per spec.md §4.1 Constraints).
func (m *Mapper) IndexToSource(idx string) string {
	clean := filepath.Clean(idx)
	rel, err := filepath.Rel(m.indexRoot, clean)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	if rel == "." {
		return string(filepath.Separator)
	}

	parts := strings.Split(rel, string(filepath.Separator))
	first := parts[0]
	// Only platforms with volume names fold a drive into the first component.
	if filepath.VolumeName("C:") != "" && looksLikeDriveLetter(first) {
		return first + ":" + string(filepath.Separator) + filepath.Join(parts[1:]...)
	}
	return string(filepath.Separator) + rel
}

// looksLikeDriveLetter reports whether s is a single ASCII letter, the
// shape SourceToIndexDir produces for a folded Windows drive component.
func looksLikeDriveLetter(s string) bool {
	if len(s) != 1 {
		return false
	}
	c := s[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// NearestAncestor returns the deepest path in registered that is an
// ancestor of (or equal to) p, pure and stateless over the given slice.
// This backs both C1's get_project_root and C2's find_nearest_index
// (spec.md §4.1, §4.2); the registry supplies the registered set.
func NearestAncestor(registered []string, p string) (string, bool) {
	clean := filepath.Clean(p)
	best := ""
	bestDepth := -1
	for _, root := range registered {
		r := filepath.Clean(root)
		if clean == r {
			return r, true
		}
		rel, err := filepath.Rel(r, clean)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		depth := strings.Count(r, string(filepath.Separator))
		if depth > bestDepth {
			bestDepth = depth
			best = r
		}
	}
	if bestDepth < 0 {
		return "", false
	}
	return best, true
}
