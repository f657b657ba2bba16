package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSink is an io.Writer that rotates to a new file once per UTC day and
// prunes files beyond maxFiles, per VK_LOG_MAX_FILES (spec §6). It is the
// Output plugged into Config when VK_FILE_LOGGING is enabled.
type FileSink struct {
	dir       string
	prefix    string
	maxFiles  int
	now       func() time.Time

	mu      sync.Mutex
	day     string
	file    *os.File
}

// NewFileSink creates a FileSink rooted at dir, naming files
// "<prefix>-YYYY-MM-DD.log". maxFiles <= 0 means unlimited retention.
func NewFileSink(dir, prefix string, maxFiles int) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &FileSink{dir: dir, prefix: prefix, maxFiles: maxFiles, now: time.Now}, nil
}

func (f *FileSink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	day := f.now().UTC().Format("2006-01-02")
	if f.file == nil || day != f.day {
		if err := f.rotate(day); err != nil {
			return 0, err
		}
	}
	return f.file.Write(p)
}

func (f *FileSink) rotate(day string) error {
	if f.file != nil {
		_ = f.file.Close()
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s-%s.log", f.prefix, day))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	f.file = file
	f.day = day
	f.prune()
	return nil
}

func (f *FileSink) prune() {
	if f.maxFiles <= 0 {
		return
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), f.prefix+"-") && strings.HasSuffix(e.Name(), ".log") {
			matches = append(matches, e.Name())
		}
	}
	sort.Strings(matches)
	for len(matches) > f.maxFiles {
		_ = os.Remove(filepath.Join(f.dir, matches[0]))
		matches = matches[1:]
	}
}

// Close closes the currently open file, if any.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
