package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// ~/share/inferd/jobs.db
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// KnowledgeFile is a prefix of one example file from the knowledge directory.
type KnowledgeFile struct {
	Name    string
	Content string
}

var knowledgeExts = map[string]bool{".py": true, ".txt": true, ".md": true, ".go": true}

// ReadKnowledge returns up to limit example files from dir, sorted by name,
// each cut to maxRunes runes. A missing directory yields no files.
func ReadKnowledge(dir string, limit, maxRunes int) ([]KnowledgeFile, error) {
	if dir == "" || limit <= 0 {
		return nil, nil
	}
	dir, err := ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []KnowledgeFile
	for _, e := range entries {
		if len(out) == limit {
			break
		}
		if e.IsDir() || !knowledgeExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return out, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out = append(out, KnowledgeFile{Name: e.Name(), Content: prefixRunes(string(b), maxRunes)})
	}
	return out, nil
}

func prefixRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
