package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var inboxExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	".bmp": true, ".webp": true, ".gif": true, ".svg": true, ".pdf": true,
}

// InboxScanner takes the oldest document from a directory, for use without
// scanner hardware. The document is moved out of the inbox.
type InboxScanner struct {
	dir string
}

func NewInboxScanner(dir string) (*InboxScanner, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox scanner needs an inbox_path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}
	return &InboxScanner{dir: dir}, nil
}

func (s *InboxScanner) DeviceInfo() string {
	return "inbox:" + s.dir
}

// Scan writes the document bytes unchanged; preprocessing converts them to PNG
func (s *InboxScanner) Scan(ctx context.Context, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := s.oldest()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(next)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", next, err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return err
	}
	return os.Remove(next)
}

func (s *InboxScanner) oldest() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to read inbox: %w", err)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !inboxExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{filepath.Join(s.dir, e.Name()), info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no document waiting in %s", s.dir)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime == candidates[j].modTime {
			return candidates[i].path < candidates[j].path
		}
		return candidates[i].modTime < candidates[j].modTime
	})
	return candidates[0].path, nil
}
