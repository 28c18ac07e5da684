package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const activeLogName = "activity.log"

// FileWriter appends activity logs to a newline-delimited JSON file
type FileWriter struct {
	basePath string
	file     *os.File
	size     int64
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64 // Max file size in bytes before rotation
	maxFiles int   // Max number of rotated files to keep
}

// FileWriterConfig configures the file writer
type FileWriterConfig struct {
	BasePath string // Directory for activity logs
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultFileWriterConfig returns default configuration
func DefaultFileWriterConfig() FileWriterConfig {
	return FileWriterConfig{
		BasePath: "/var/log/gatekeeper/activity",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024, // 100MB
		MaxFiles: 10,
	}
}

// NewFileWriter creates a file-based audit writer
func NewFileWriter(config FileWriterConfig) (*FileWriter, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create activity log directory: %w", err)
	}

	w := &FileWriter{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}

	if w.maxSize == 0 {
		w.maxSize = 100 * 1024 * 1024
	}
	if w.maxFiles == 0 {
		w.maxFiles = 10
	}

	if err := w.openLogFile(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *FileWriter) activePath() string {
	return filepath.Join(w.basePath, activeLogName)
}

// openLogFile opens or creates the active log file
func (w *FileWriter) openLogFile() error {
	filename := w.activePath()

	if w.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= w.maxSize {
			if err := w.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open activity log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat activity log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	w.encoder = json.NewEncoder(&countingWriter{w: file, n: &w.size})

	return nil
}

// rotateFile renames the active file with a timestamp suffix
func (w *FileWriter) rotateFile() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	timestamp := time.Now().UTC().Format("2006-01-02-15-04-05.000000000")
	rotated := filepath.Join(w.basePath, fmt.Sprintf("activity-%s.log", timestamp))

	if err := os.Rename(w.activePath(), rotated); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if err := w.cleanupOldFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to cleanup old activity logs: %v\n", err)
	}

	return nil
}

// cleanupOldFiles removes rotated files beyond the retention limit
func (w *FileWriter) cleanupOldFiles() error {
	files, err := w.RotatedFiles()
	if err != nil {
		return err
	}

	if len(files) > w.maxFiles {
		for _, file := range files[:len(files)-w.maxFiles] {
			if err := os.Remove(file); err != nil {
				fmt.Fprintf(os.Stderr, "failed to remove old activity log %s: %v\n", file, err)
			}
		}
	}

	return nil
}

// RotatedFiles lists rotated log files, oldest first
func (w *FileWriter) RotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(w.basePath, "activity-*.log"))
	if err != nil {
		return nil, err
	}
	// Timestamp suffixes sort lexically
	sort.Strings(files)
	return files, nil
}

// Append writes one record as a JSON line
func (w *FileWriter) Append(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	stamp(record)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("activity log file is closed")
	}

	if w.rotate && w.size >= w.maxSize {
		if err := w.rotateFile(); err != nil {
			return err
		}
		if err := w.openLogFile(); err != nil {
			return err
		}
	}

	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}

	return nil
}

// Close closes the active file
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}

	return nil
}

// ReadLogs reads up to count records from the active file. A count of zero reads all.
func (w *FileWriter) ReadLogs(count int) ([]*Record, error) {
	file, err := os.Open(w.activePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	defer file.Close()

	var records []*Record
	decoder := json.NewDecoder(file)

	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode activity log entry: %w", err)
		}
		records = append(records, &record)

		if count > 0 && len(records) >= count {
			break
		}
	}

	return records, nil
}

type countingWriter struct {
	w io.Writer
	n *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}
