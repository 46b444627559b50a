package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bramasta/komikarsip/internal/codec"
)

// ErrNotFound reports a missing document. A missing parent directory and a
// missing file are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("archive: document not found")

// Store reads and writes archive documents under a data directory:
//
//	<dataDir>/index.json
//	<dataDir>/comics/<slug>/metadata.json
//	<dataDir>/comics/<slug>/chapters/chapter-<id>.json
//
// Sensitive URLs are run through the codec on every write and read. Every
// write replaces the whole document via a temp file and rename, so a partial
// write never clobbers the previous version.
type Store struct {
	dataDir   string
	comicsDir string
	codec     *codec.Codec
}

// New creates a Store rooted at dataDir, creating the comics directory if
// it does not exist yet.
func New(dataDir string, c *codec.Codec) (*Store, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("archive: data directory is required")
	}
	comicsDir := filepath.Join(dataDir, "comics")
	if err := os.MkdirAll(comicsDir, 0o750); err != nil {
		return nil, fmt.Errorf("archive: create comics directory: %w", err)
	}
	return &Store{dataDir: dataDir, comicsDir: comicsDir, codec: c}, nil
}

// DataDir returns the archive root.
func (s *Store) DataDir() string { return s.dataDir }

// LoadIndex returns the persisted index, or an empty default when the file
// is missing or unreadable. It never fails the caller.
func (s *Store) LoadIndex() *Index {
	idx := &Index{Comics: []ComicSummary{}}
	raw, err := os.ReadFile(s.indexPath())
	if err != nil {
		return idx
	}
	if err := json.Unmarshal(raw, idx); err != nil {
		return &Index{Comics: []ComicSummary{}}
	}
	return idx
}

// SaveIndex overwrites the index document. The index carries no URL fields,
// so the codec is not involved.
func (s *Store) SaveIndex(idx *Index) error {
	return s.writeDoc(s.indexPath(), idx, false)
}

// LoadTitle returns the decoded metadata document for slug, or ErrNotFound.
func (s *Store) LoadTitle(slug string) (*Metadata, error) {
	var meta Metadata
	if err := s.readDoc(s.metadataPath(slug), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SaveTitle writes a title's metadata, creating its directory tree
// (including the chapters subdirectory) as needed.
func (s *Store) SaveTitle(slug string, meta *Metadata) error {
	if err := os.MkdirAll(s.chaptersDir(slug), 0o750); err != nil {
		return fmt.Errorf("archive: create title directories: %w", err)
	}
	return s.writeDoc(s.metadataPath(slug), meta, true)
}

// LoadChapter returns the decoded chapter snapshot, or ErrNotFound.
func (s *Store) LoadChapter(slug, chapterID string) (*Chapter, error) {
	var ch Chapter
	if err := s.readDoc(s.chapterPath(slug, chapterID), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// SaveChapter overwrites (or creates) a chapter snapshot.
func (s *Store) SaveChapter(slug, chapterID string, ch *Chapter) error {
	if err := os.MkdirAll(s.chaptersDir(slug), 0o750); err != nil {
		return fmt.Errorf("archive: create chapters directory: %w", err)
	}
	return s.writeDoc(s.chapterPath(slug, chapterID), ch, true)
}

// ListTitles returns the slugs of every title with a directory in the
// archive, in directory order.
func (s *Store) ListTitles() ([]string, error) {
	entries, err := os.ReadDir(s.comicsDir)
	if err != nil {
		return nil, fmt.Errorf("archive: list titles: %w", err)
	}
	slugs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			slugs = append(slugs, e.Name())
		}
	}
	return slugs, nil
}

// NormalizeChapterID maps an opaque chapter identifier to a filesystem-safe
// token. Every non-alphanumeric rune becomes "-" plus its lowercase hex
// value, so distinct identifiers that differ only in punctuation ("1.5" vs
// "1-5") never collide.
func NormalizeChapterID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "-%02x", r)
		}
	}
	return b.String()
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dataDir, "index.json")
}

func (s *Store) metadataPath(slug string) string {
	return filepath.Join(s.comicsDir, slug, "metadata.json")
}

func (s *Store) chaptersDir(slug string) string {
	return filepath.Join(s.comicsDir, slug, "chapters")
}

func (s *Store) chapterPath(slug, chapterID string) string {
	name := fmt.Sprintf("chapter-%s.json", NormalizeChapterID(chapterID))
	return filepath.Join(s.chaptersDir(slug), name)
}

// writeDoc serializes doc, optionally routes it through the codec, and
// publishes it with a write-then-rename so readers never observe a torn
// file.
func (s *Store) writeDoc(path string, doc any, encode bool) error {
	tree, err := toTree(doc)
	if err != nil {
		return err
	}
	if encode {
		tree = s.codec.EncodeTree(tree)
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("archive: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("archive: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: publish %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readDoc loads a document, decodes sensitive URLs, and unmarshals it into
// out.
func (s *Store) readDoc(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("archive: read %s: %w", filepath.Base(path), err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("archive: parse %s: %w", filepath.Base(path), err)
	}
	decoded, err := json.Marshal(s.codec.DecodeTree(tree))
	if err != nil {
		return fmt.Errorf("archive: re-marshal %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(decoded, out); err != nil {
		return fmt.Errorf("archive: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// toTree converts a typed document into the generic JSON tree the codec
// walks.
func toTree(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal document: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("archive: rebuild document tree: %w", err)
	}
	return tree, nil
}
