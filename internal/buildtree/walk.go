package buildtree

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/gitignore"
)

// fileEntry is one supported source file discovered in a directory.
type fileEntry struct {
	path     string // absolute
	language string
}

// dirNode is one directory in the discovered source tree, grounded on the
// teacher's scanner.ScanResult but restructured around depth-grouped,
// bottom-up indexability (spec.md §4.7 steps 2-3).
type dirNode struct {
	sourcePath string // absolute, cleaned
	depth      int
	files      []fileEntry
	children   []string // immediate child directory source paths
	indexable  bool
}

// discoverTree walks root, skipping cfg's ignore set and any gitignore
// patterns found along the way, and returns every directory keyed by its
// absolute path plus the maximum depth observed. A directory is indexable
// iff it directly contains a supported source file or any descendant does
// (spec.md §4.7 step 2); that propagation happens in markIndexable.
func discoverTree(root string, cfg config.Config) (map[string]*dirNode, int, error) {
	root = filepath.Clean(root)
	nodes := make(map[string]*dirNode)
	matcher := gitignore.New()
	maxDepth := 0

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if depth > maxDepth {
			maxDepth = depth
		}
		node := &dirNode{sourcePath: dir, depth: depth}
		nodes[dir] = node

		if giPath := filepath.Join(dir, ".gitignore"); fileExists(giPath) {
			rel, _ := filepath.Rel(root, dir)
			if rel == "." {
				rel = ""
			}
			_ = matcher.AddFromFile(giPath, filepath.ToSlash(rel))
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			name := entry.Name()
			childPath := filepath.Join(dir, name)
			relPath, _ := filepath.Rel(root, childPath)
			relPath = filepath.ToSlash(relPath)

			if entry.IsDir() {
				if cfg.IsIgnoredDir(name) {
					continue
				}
				if matcher.Match(relPath, true) {
					continue
				}
				node.children = append(node.children, childPath)
				if err := walk(childPath, depth+1); err != nil {
					return err
				}
				continue
			}

			if matcher.Match(relPath, false) {
				continue
			}
			if lang, ok := languageForFile(name); ok {
				node.files = append(node.files, fileEntry{path: childPath, language: lang})
			}
		}
		return nil
	}

	if err := walk(root, 0); err != nil {
		return nil, 0, err
	}
	markIndexable(nodes, root)
	return nodes, maxDepth, nil
}

// markIndexable propagates indexability from leaves to root (post-order by
// depth, deepest first, so every child is resolved before its parent).
func markIndexable(nodes map[string]*dirNode, root string) {
	byDepth := make(map[int][]*dirNode)
	max := 0
	for _, n := range nodes {
		byDepth[n.depth] = append(byDepth[n.depth], n)
		if n.depth > max {
			max = n.depth
		}
	}
	for depth := max; depth >= 0; depth-- {
		for _, n := range byDepth[depth] {
			if len(n.files) > 0 {
				n.indexable = true
				continue
			}
			for _, childPath := range n.children {
				if child, ok := nodes[childPath]; ok && child.indexable {
					n.indexable = true
					break
				}
			}
		}
	}
}

func groupIndexableByDepth(nodes map[string]*dirNode) map[int][]*dirNode {
	grouped := make(map[int][]*dirNode)
	for _, n := range nodes {
		if n.indexable {
			grouped[n.depth] = append(grouped[n.depth], n)
		}
	}
	return grouped
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func relSlash(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
