package eventlogger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/GoCodeAlone/modkit/logging"
)

// Entry is one logged event.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     logging.Level  `json:"level"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	ID        string         `json:"id"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Output receives log entries.
type Output interface {
	// Start opens the output
	Start(ctx context.Context) error

	// Stop closes the output
	Stop(ctx context.Context) error

	// Write writes one entry
	Write(entry *Entry) error

	// Flush persists buffered entries
	Flush() error
}

// NewOutput creates the output described by cfg.
func NewOutput(cfg OutputConfig) (Output, error) {
	threshold, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "console":
		return &writerOutput{w: os.Stdout, format: cfg.Format, min: threshold}, nil
	case "file":
		return &fileOutput{writerOutput: writerOutput{format: cfg.Format, min: threshold}, path: cfg.Path}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutputType, cfg.Type)
	}
}

// NewWriterOutput writes entries to w in format ("text" or "json").
func NewWriterOutput(w io.Writer, format string) Output {
	return &writerOutput{w: w, format: format, min: logging.LevelTrace}
}

func parseLevel(s string) (logging.Level, error) {
	if s == "" {
		return logging.LevelTrace, nil
	}
	return logging.ParseLevel(s)
}

type writerOutput struct {
	w      io.Writer
	format string
	min    logging.Level
}

func (o *writerOutput) Start(ctx context.Context) error { return nil }
func (o *writerOutput) Stop(ctx context.Context) error  { return nil }
func (o *writerOutput) Flush() error                    { return nil }

func (o *writerOutput) Write(entry *Entry) error {
	if !o.min.Enabled(entry.Level) {
		return nil
	}
	line, err := format(entry, o.format)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(o.w, line); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// fileOutput appends entries to a file.
type fileOutput struct {
	writerOutput
	path string
	file *os.File
}

func (f *fileOutput) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create log directory %s: %w", filepath.Dir(f.path), err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", f.path, err)
	}
	f.file = file
	f.w = file
	return nil
}

func (f *fileOutput) Stop(ctx context.Context) error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.w = nil
	return err
}

func (f *fileOutput) Write(entry *Entry) error {
	if f.file == nil {
		return ErrFileNotOpen
	}
	return f.writerOutput.Write(entry)
}

func (f *fileOutput) Flush() error {
	if f.file == nil {
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", f.path, err)
	}
	return nil
}

func format(entry *Entry, format string) (string, error) {
	if format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			return "", fmt.Errorf("marshal log entry: %w", err)
		}
		return string(data), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s [%s] %s", entry.Timestamp.Format(time.RFC3339), strings.ToUpper(entry.Level.String()), entry.Type, entry.Source)
	if entry.Data != nil {
		fmt.Fprintf(&b, " %v", entry.Data)
	}
	if len(entry.Metadata) > 0 {
		keys := make([]string, 0, len(entry.Metadata))
		for k := range entry.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Metadata[k])
		}
	}
	return b.String(), nil
}
