package corpus

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind classifies a source document.
type Kind string

const (
	// KindPlain is a standalone text document from the docs directory.
	KindPlain Kind = "plain"
	// KindMediaCaption is a caption file paired with media assets that share
	// its base name.
	KindMediaCaption Kind = "media-caption"
)

// Document is a single indexable source document. ID is stable across scans
// (derived from the filename) and doubles as the vector index record key.
// Fingerprint changes whenever the file's content does.
type Document struct {
	ID          string
	Text        string
	Fingerprint string
	Kind        Kind
	MediaFiles  []string
}

// mediaURLPrefix is the site-relative path the web layer serves media under.
const mediaURLPrefix = "/static/media/"

var mediaExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".mp4":  true,
	".mov":  true,
	".webm": true,
}

// Scanner enumerates the document corpus: plain text files from a docs
// directory, plus caption/media pairs from a media directory.
type Scanner struct {
	docsDir  string
	mediaDir string
	logger   *slog.Logger
}

// NewScanner creates a Scanner over the given directories. Either directory
// may be absent; it then contributes nothing to a scan.
func NewScanner(docsDir, mediaDir string) *Scanner {
	return &Scanner{docsDir: docsDir, mediaDir: mediaDir, logger: slog.Default()}
}

// Scan returns the current set of source documents. A directory that cannot
// be read is logged and yields no documents; a scan never fails outright.
func (s *Scanner) Scan() []Document {
	docs := s.scanDocs()
	docs = append(docs, s.scanMedia()...)
	return docs
}

func (s *Scanner) scanDocs() []Document {
	entries, err := os.ReadDir(s.docsDir)
	if err != nil {
		s.logger.Warn("skipping docs directory", "dir", s.docsDir, "error", err)
		return nil
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		doc, err := s.readDocument(filepath.Join(s.docsDir, entry.Name()), entry.Name(), KindPlain)
		if err != nil {
			s.logger.Warn("skipping unreadable document", "file", entry.Name(), "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func (s *Scanner) scanMedia() []Document {
	entries, err := os.ReadDir(s.mediaDir)
	if err != nil {
		s.logger.Warn("skipping media directory", "dir", s.mediaDir, "error", err)
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	var docs []Document
	for _, name := range names {
		if !strings.HasSuffix(name, ".txt") {
			continue
		}

		doc, err := s.readDocument(filepath.Join(s.mediaDir, name), "media/"+name, KindMediaCaption)
		if err != nil {
			s.logger.Warn("skipping unreadable caption", "file", name, "error", err)
			continue
		}
		doc.MediaFiles = pairedMedia(names, strings.TrimSuffix(name, ".txt"))
		docs = append(docs, doc)
	}
	return docs
}

func (s *Scanner) readDocument(path, id string, kind Kind) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID:          id,
		Text:        string(content),
		Fingerprint: info.ModTime().UTC().Format(time.RFC3339Nano),
		Kind:        kind,
	}, nil
}

// MediaIndex maps caption base names to the media URLs sharing that base
// name. The search engine uses it to resolve media for matches whose stored
// metadata predates media tracking.
func (s *Scanner) MediaIndex() map[string][]string {
	entries, err := os.ReadDir(s.mediaDir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	index := make(map[string][]string)
	for _, name := range names {
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		base := strings.TrimSuffix(name, ".txt")
		if media := pairedMedia(names, base); len(media) > 0 {
			index[base] = media
		}
	}
	return index
}

// pairedMedia returns site-relative URLs for every file in names whose base
// name matches base and whose extension is a recognized media type.
func pairedMedia(names []string, base string) []string {
	var media []string
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if strings.TrimSuffix(name, filepath.Ext(name)) == base && mediaExtensions[ext] {
			media = append(media, mediaURLPrefix+name)
		}
	}
	return media
}
