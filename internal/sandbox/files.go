package sandbox

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"spacerun/internal/protocol"
)

// FileResult is the structured outcome of a single filesystem primitive.
// Each primitive populates only the optional fields relevant to it
// (BytesWritten for CreateFile; Content, Encoding and Size for ReadFile;
// EditsApplied and Size for EditFile), matching the corresponding
// protocol.Event shape the executor builds from it.
type FileResult struct {
	Success      bool
	Error        string
	BytesWritten int
	Content      string
	Encoding     protocol.Encoding
	Size         int
	EditsApplied int
}

// FileEntry describes one path returned by ListFiles.
type FileEntry struct {
	Path       string
	Size       int64
	IsDir      bool
	ModifiedAt time.Time
}

// resolvePath validates that relPath resolves under the workspace root,
// returning the absolute host path. A path escaping the workspace is
// reported as a failure rather than a panic.
func (s *Sandbox) resolvePath(relPath string) (string, bool) {
	cleaned := filepath.Clean("/" + relPath)
	abs := filepath.Join(s.workspacePath, cleaned)
	root := filepath.Clean(s.workspacePath) + string(os.PathSeparator)
	if !strings.HasPrefix(abs+string(os.PathSeparator), root) {
		return "", false
	}
	return abs, true
}

// CreateFile writes content (decoded per encoding) to relPath, refusing to
// overwrite an existing file unless overwrite is true.
func (s *Sandbox) CreateFile(relPath, content string, encoding protocol.Encoding, overwrite bool) FileResult {
	abs, ok := s.resolvePath(relPath)
	if !ok {
		return FileResult{Success: false, Error: "Path is outside workspace"}
	}

	if !overwrite {
		if _, err := os.Stat(abs); err == nil {
			return FileResult{Success: false, Error: "File already exists"}
		}
	}

	data, err := decodeContent(content, encoding)
	if err != nil {
		return FileResult{Success: false, Error: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return FileResult{Success: false, Error: err.Error()}
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return FileResult{Success: false, Error: err.Error()}
	}

	return FileResult{Success: true, BytesWritten: len(data)}
}

// ReadFile returns the file's content encoded per encoding plus its byte
// size, or a failure if it does not exist.
func (s *Sandbox) ReadFile(relPath string, encoding protocol.Encoding) FileResult {
	abs, ok := s.resolvePath(relPath)
	if !ok {
		return FileResult{Success: false, Error: "Path is outside workspace"}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return FileResult{Success: false, Error: "File not found"}
		}
		return FileResult{Success: false, Error: err.Error()}
	}

	return FileResult{
		Success:  true,
		Content:  encodeContent(data, encoding),
		Encoding: encoding,
		Size:     len(data),
	}
}

// EditFile applies edits in order, each replacing the first occurrence of
// OldContent with NewContent against the file's running UTF-8 buffer. If
// any edit's OldContent is not found, the whole call aborts without
// writing, reporting the first 50 characters of the unmatched probe.
func (s *Sandbox) EditFile(relPath string, edits []protocol.Edit) FileResult {
	abs, ok := s.resolvePath(relPath)
	if !ok {
		return FileResult{Success: false, Error: "Path is outside workspace"}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return FileResult{Success: false, Error: "File not found"}
		}
		return FileResult{Success: false, Error: err.Error()}
	}

	buf := string(data)
	for _, edit := range edits {
		idx := strings.Index(buf, edit.OldContent)
		if idx < 0 {
			probe := edit.OldContent
			if len(probe) > 50 {
				probe = probe[:50]
			}
			return FileResult{Success: false, Error: "Edit content not found: " + probe}
		}
		buf = buf[:idx] + edit.NewContent + buf[idx+len(edit.OldContent):]
	}

	if err := os.WriteFile(abs, []byte(buf), 0o644); err != nil {
		return FileResult{Success: false, Error: err.Error()}
	}

	return FileResult{Success: true, EditsApplied: len(edits), Size: len(buf)}
}

// DeleteFile unlinks relPath, failing if it does not exist.
func (s *Sandbox) DeleteFile(relPath string) FileResult {
	abs, ok := s.resolvePath(relPath)
	if !ok {
		return FileResult{Success: false, Error: "Path is outside workspace"}
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return FileResult{Success: false, Error: "File not found"}
		}
		return FileResult{Success: false, Error: err.Error()}
	}
	if err := os.Remove(abs); err != nil {
		return FileResult{Success: false, Error: err.Error()}
	}
	return FileResult{Success: true}
}

// ListFiles walks relDir depth-first, pre-order, listing directories
// before descending into them. A missing directory returns an empty list
// rather than an error.
func (s *Sandbox) ListFiles(relDir string, recursive bool) ([]FileEntry, error) {
	abs, ok := s.resolvePath(relDir)
	if !ok {
		return nil, nil
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, nil
	}

	var entries []FileEntry
	var walk func(dir, relPrefix string) error
	walk = func(dir, relPrefix string) error {
		items, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

		for _, item := range items {
			info, err := item.Info()
			if err != nil {
				continue
			}
			relPath := filepath.Join(relPrefix, item.Name())
			entries = append(entries, FileEntry{
				Path:       relPath,
				Size:       info.Size(),
				IsDir:      item.IsDir(),
				ModifiedAt: info.ModTime(),
			})
			if item.IsDir() && recursive {
				if err := walk(filepath.Join(dir, item.Name()), relPath); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(abs, ""); err != nil {
		return nil, err
	}
	return entries, nil
}

func decodeContent(content string, encoding protocol.Encoding) ([]byte, error) {
	if encoding == protocol.EncodingBase64 {
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(content), nil
}

func encodeContent(data []byte, encoding protocol.Encoding) string {
	if encoding == protocol.EncodingBase64 {
		return base64.StdEncoding.EncodeToString(data)
	}
	return string(data)
}
