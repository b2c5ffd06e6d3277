// Package csvstore persists configuration snapshots as CSV exports on the
// local filesystem. Every save produces a timestamped file plus a rolling
// {environment}_latest.csv so downstream tooling always has a stable path.
package csvstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"cpi-proxy/internal/common/errors"
	"cpi-proxy/internal/common/logging"
	"cpi-proxy/internal/models"
)

// header is the fixed CSV schema. Column order is part of the contract with
// the spreadsheets consuming these exports.
var header = []string{
	"Environment",
	"Timestamp",
	"iFlow_ID",
	"iFlow_Name",
	"iFlow_Version",
	"Parameter_Key",
	"Parameter_Value",
	"Saved_At",
}

const timestampLayout = "20060102_150405"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SaveResult describes the files written by one save
type SaveResult struct {
	File       string `json:"file"`
	LatestFile string `json:"latest_file"`
	Rows       int    `json:"rows"`
}

// ExportFile describes one CSV export on disk
type ExportFile struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Store writes and lists CSV exports under one directory
type Store struct {
	dir    string
	logger logging.Logger

	// mu serializes writers so the latest file is never half of one
	// snapshot and half of another
	mu sync.Mutex
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger
func WithStoreLogger(logger logging.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates the export directory if needed and returns a store
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.GetGlobalLogger()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.InternalError("failed to create export directory", err).
			WithContext("dir", dir)
	}
	return s, nil
}

// Save writes one configuration snapshot as two files: a timestamped export
// and the environment's rolling latest export.
func (s *Store) Save(req models.ConfigurationSaveRequest) (SaveResult, error) {
	if len(req.Parameters) == 0 {
		return SaveResult{}, errors.ValidationError("no parameters to save")
	}

	now := time.Now()
	timestamp := now.Format(timestampLayout)
	savedAt := now.Format(time.RFC3339)
	env := sanitizeName(req.Environment)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return SaveResult{}, errors.InternalError("failed to write CSV header", err)
	}
	for _, param := range req.Parameters {
		row := []string{
			req.Environment,
			timestamp,
			req.IFlowID,
			req.IFlowName,
			req.Version,
			param.Key,
			param.Value,
			savedAt,
		}
		if err := writer.Write(row); err != nil {
			return SaveResult{}, errors.InternalError("failed to write CSV row", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return SaveResult{}, errors.InternalError("failed to flush CSV", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Saves within the same second share a timestamp; suffix until free so a
	// snapshot never silently overwrites an earlier one
	name := fmt.Sprintf("%s_%s.csv", env, timestamp)
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s_%s_%d.csv", env, timestamp, n)
	}
	latest := fmt.Sprintf("%s_latest.csv", env)

	if err := os.WriteFile(filepath.Join(s.dir, name), buf.Bytes(), 0o644); err != nil {
		return SaveResult{}, errors.InternalError("failed to write export file", err).
			WithContext("file", name)
	}
	if err := os.WriteFile(filepath.Join(s.dir, latest), buf.Bytes(), 0o644); err != nil {
		return SaveResult{}, errors.InternalError("failed to write latest export", err).
			WithContext("file", latest)
	}

	s.logger.Info("Configuration snapshot saved",
		logging.Field{Key: "environment", Value: req.Environment},
		logging.Field{Key: "iflow_id", Value: req.IFlowID},
		logging.Field{Key: "rows", Value: len(req.Parameters)},
		logging.Field{Key: "file", Value: name})

	return SaveResult{
		File:       name,
		LatestFile: latest,
		Rows:       len(req.Parameters),
	}, nil
}

// ListExports returns CSV exports, newest first. A non-empty environment
// restricts the listing to that environment's files.
func (s *Store) ListExports(environment string) ([]ExportFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.InternalError("failed to read export directory", err).
			WithContext("dir", s.dir)
	}

	prefix := ""
	if environment != "" {
		prefix = sanitizeName(environment) + "_"
	}

	exports := make([]ExportFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		exports = append(exports, ExportFile{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(exports, func(i, j int) bool {
		return exports[i].ModifiedAt.After(exports[j].ModifiedAt)
	})
	return exports, nil
}

// sanitizeName makes an environment name safe for use in a filename
func sanitizeName(name string) string {
	cleaned := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if cleaned == "" {
		return "default"
	}
	return cleaned
}
