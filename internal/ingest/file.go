package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Napageneral/dailwatch/internal/transcript"
)

// FileInput names a transcript on local disk.
type FileInput struct {
	Path    string
	Chamber string
	Date    string
	Title   string
}

var fileNamePattern = regexp.MustCompile(`^([a-z0-9_]+)-(\d{4}-\d{2}-\d{2})\.xml$`)

// ParseFileName extracts chamber and date from "<chamber>-<YYYY-MM-DD>.xml".
func ParseFileName(name string) (chamber, date string, ok bool) {
	m := fileNamePattern.FindStringSubmatch(strings.ToLower(filepath.Base(name)))
	if m == nil {
		return "", "", false
	}
	if _, err := time.Parse("2006-01-02", m[2]); err != nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// IngestFile parses and persists a local transcript. Chamber and date fall
// back to the file name when empty. The source uri is the absolute file path,
// so re-ingesting the same file updates in place.
func (s *Syncer) IngestFile(ctx context.Context, in FileInput) (*DayResult, error) {
	if in.Chamber == "" || in.Date == "" {
		chamber, date, ok := ParseFileName(in.Path)
		if !ok {
			return nil, fmt.Errorf("cannot infer chamber and date from %q; expected <chamber>-<YYYY-MM-DD>.xml", filepath.Base(in.Path))
		}
		if in.Chamber == "" {
			in.Chamber = chamber
		}
		if in.Date == "" {
			in.Date = date
		}
	}

	abs, err := filepath.Abs(in.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", in.Path, err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	doc, err := transcript.Parse(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(abs), err)
	}

	title := in.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}
	return s.SyncDay(ctx, DayInput{
		Chamber:   in.Chamber,
		Date:      in.Date,
		Title:     title,
		SourceURI: "file://" + filepath.ToSlash(abs),
		Document:  doc,
	})
}
