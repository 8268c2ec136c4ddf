// Package incremental implements C8 (spec.md §4.8): applying a batch of
// file-change events to the already-built index tree without a full
// rebuild. Events are resolved to their owning directory via C2's
// find_nearest_index, parsed through C3, and written through C4/C5.
package incremental

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/codexlens/codexlens/internal/cerrors"
	"github.com/codexlens/codexlens/internal/dirindex"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/parser"
	"github.com/codexlens/codexlens/internal/registry"
)

// ChangeType enumerates spec.md §6's file-change event types.
type ChangeType string

const (
	Created  ChangeType = "CREATED"
	Modified ChangeType = "MODIFIED"
	Deleted  ChangeType = "DELETED"
	Moved    ChangeType = "MOVED"
)

// Event is one file-change event from spec.md §6: "a file-change event is
// {path, type, old_path?, timestamp}".
type Event struct {
	Path      string
	Type      ChangeType
	OldPath   string
	Timestamp time.Time
}

// BatchResult is the aggregate outcome of one ApplyBatch call (spec.md §4.8:
// "{files_indexed, files_removed, symbols_added, errors[]}").
type BatchResult struct {
	FilesIndexed int
	FilesRemoved int
	SymbolsAdded int
	Errors       []EventError
}

// EventError pairs one event with the error applying it produced; a single
// event's failure never aborts the rest of the batch (spec.md §4.8:
// "Errors are per-event").
type EventError struct {
	Event Event
	Err   error
}

func (e EventError) Error() string { return e.Event.Path + ": " + e.Err.Error() }

// languageResolver resolves a file's parser language from its extension. Events
// for files the builder would not have walked (unsupported extensions)
// are silently no-ops, matching C7's own indexability rule.
type languageResolver func(path string) (string, bool)

// Indexer applies incremental file-change batches against an already-built
// index tree.
type Indexer struct {
	Registry *registry.Store
	Global   *globalindex.Store
	Parsers  *parser.Registry
	Language languageResolver
}

// NewIndexer constructs an Indexer. lang resolves a file path to a parser
// language tag, the same mapping buildtree's walk uses to decide which
// files are indexable.
func NewIndexer(reg *registry.Store, global *globalindex.Store, parsers *parser.Registry, lang func(path string) (string, bool)) *Indexer {
	return &Indexer{Registry: reg, Global: global, Parsers: parsers, Language: lang}
}

// ApplyBatch applies every event in order, per spec.md §4.8's per-event
// dispatch: CREATED/MODIFIED re-parses and re-adds the file, DELETED
// removes it, and MOVED is DELETED(old_path) followed by CREATED(new_path).
func (idx *Indexer) ApplyBatch(ctx context.Context, events []Event) BatchResult {
	var result BatchResult

	for _, ev := range events {
		switch ev.Type {
		case Created, Modified:
			n, symbols, err := idx.applyUpsert(ctx, ev.Path)
			if err != nil {
				result.Errors = append(result.Errors, EventError{Event: ev, Err: err})
				continue
			}
			result.FilesIndexed += n
			result.SymbolsAdded += symbols

		case Deleted:
			if err := idx.applyRemove(ctx, ev.Path); err != nil {
				result.Errors = append(result.Errors, EventError{Event: ev, Err: err})
				continue
			}
			result.FilesRemoved++

		case Moved:
			if ev.OldPath != "" {
				if err := idx.applyRemove(ctx, ev.OldPath); err != nil {
					result.Errors = append(result.Errors, EventError{Event: ev, Err: err})
				} else {
					result.FilesRemoved++
				}
			}
			n, symbols, err := idx.applyUpsert(ctx, ev.Path)
			if err != nil {
				result.Errors = append(result.Errors, EventError{Event: ev, Err: err})
				continue
			}
			result.FilesIndexed += n
			result.SymbolsAdded += symbols
		}
	}

	return result
}

// applyUpsert locates path's owning DirIndexStore via C2, reparses it, and
// writes the result into C4 and C5, retrying transient SQLite errors up to
// three times with exponential backoff (spec.md §4.8).
func (idx *Indexer) applyUpsert(ctx context.Context, path string) (filesIndexed, symbolsAdded int, err error) {
	lang, ok := idx.Language(path)
	if !ok {
		return 0, 0, nil
	}

	mapping, found, err := idx.Registry.FindNearestIndex(filepath.Dir(path))
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, cerrors.StorageError("no index found for "+path, nil)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, cerrors.StorageError("read changed file", err)
	}

	var store *dirindex.Store
	err = cerrors.Retry(ctx, func() error {
		var openErr error
		store, openErr = dirindex.Open(mapping.IndexPath)
		return classify(openErr)
	})
	if err != nil {
		return 0, 0, err
	}
	defer store.Close()

	parsed, err := idx.Parsers.Parse(content, path, lang)
	if err != nil {
		return 0, 0, cerrors.ParseError("parse changed file "+path, err)
	}

	info, statErr := os.Stat(path)
	var size int64
	var modTime time.Time
	if statErr == nil {
		size = info.Size()
		modTime = info.ModTime()
	}
	sha := sha256Hex(content)

	file := dirindex.FileRecord{Path: path, Language: lang, Size: size, ModTime: modTime, ContentSHA: sha, MerkleLeaf: sha}
	symbolRecords := make([]dirindex.SymbolRecord, len(parsed.Symbols))
	for i, s := range parsed.Symbols {
		symbolRecords[i] = dirindex.SymbolRecord{FilePath: path, Name: s.Name, Kind: string(s.Kind), StartLine: s.StartLine, EndLine: s.EndLine}
	}
	relRecords := make([]dirindex.RelationshipRecord, len(parsed.Relationships))
	for i, r := range parsed.Relationships {
		relRecords[i] = dirindex.RelationshipRecord{
			SourceSymbol: r.SourceSymbol, TargetSymbol: r.TargetSymbol, Type: string(r.Type),
			SourceFile: r.SourceFile, TargetFile: r.TargetFile, SourceLine: r.SourceLine,
		}
	}

	err = cerrors.Retry(ctx, func() error {
		return classify(store.AddFile(ctx, file, string(content), symbolRecords, relRecords))
	})
	if err != nil {
		return 0, 0, err
	}

	root, hasRoot, err := store.MerkleRoot(ctx)
	if err == nil {
		if !hasRoot {
			root = sha
		}
		_ = store.UpdateMerkleRoot(ctx, sha256Hex([]byte(root+sha)))
	}

	globalSymbols := make([]globalindex.Symbol, len(parsed.Symbols))
	for i, s := range parsed.Symbols {
		globalSymbols[i] = globalindex.Symbol{Name: s.Name, Kind: string(s.Kind), FilePath: path, StartLine: s.StartLine, EndLine: s.EndLine}
	}
	globalRels := make([]globalindex.Relationship, len(parsed.Relationships))
	for i, r := range parsed.Relationships {
		globalRels[i] = globalindex.Relationship{
			SourceSymbol: r.SourceSymbol, TargetSymbol: r.TargetSymbol, Type: string(r.Type),
			SourceFile: r.SourceFile, TargetFile: r.TargetFile, SourceLine: r.SourceLine,
		}
	}
	if err := idx.Global.UpdateFileRelationships(ctx, path, globalSymbols, globalRels); err != nil {
		return 1, len(parsed.Symbols), err
	}

	return 1, len(parsed.Symbols), nil
}

// applyRemove locates path's owning DirIndexStore and removes its file and
// C5 relationships.
func (idx *Indexer) applyRemove(ctx context.Context, path string) error {
	mapping, found, err := idx.Registry.FindNearestIndex(filepath.Dir(path))
	if err != nil {
		return err
	}
	if !found {
		return nil // nothing indexed for this path; deleting it is a no-op
	}

	store, err := dirindex.Open(mapping.IndexPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RemoveFile(ctx, path); err != nil {
		return err
	}

	return idx.Global.DeleteFileRelationships(ctx, path)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if cerrors.LooksTransient(err) {
		return cerrors.StorageBusyError("incremental indexer operation", err)
	}
	return err
}
