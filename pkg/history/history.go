// Package history keeps a process-wide log of past extractions, persisted as
// JSON. The service is an explicit instance owned by the composition root,
// not a hidden singleton.
package history

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/unzipr/unzipr/internal/logger"
	"github.com/unzipr/unzipr/pkg/task"
)

// DefaultMaxEntries caps the history file size.
const DefaultMaxEntries = 50

// Record is one completed (or failed) extraction.
type Record struct {
	ArchiveName    string    `json:"archive_name"`
	ArchivePath    string    `json:"archive_path"`
	Destination    string    `json:"destination_path"`
	ExtractedFiles int       `json:"extracted_files"`
	ExtractedBytes int64     `json:"extracted_bytes"`
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Service loads, appends and persists extraction records, newest first.
type Service struct {
	mu         sync.Mutex
	fs         afero.Fs
	path       string
	maxEntries int
	records    []Record
	logger     zerolog.Logger
}

// NewService builds a service over fs backed by the JSON file at path.
// Missing or corrupt files are tolerated and treated as empty history.
func NewService(fs afero.Fs, path string, maxEntries int) *Service {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	s := &Service{
		fs:         fs,
		path:       path,
		maxEntries: maxEntries,
		logger:     logger.New("history"),
	}
	s.load()
	return s
}

func (s *Service) load() {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn().Err(err).Msg("Could not parse history file, starting empty")
		return
	}
	s.records = records
	s.logger.Debug().Int("records", len(records)).Msg("Loaded extraction history")
}

func (s *Service) save() {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not marshal history")
		return
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.logger.Error().Err(err).Msg("Could not create history directory")
		return
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0644); err != nil {
		s.logger.Error().Err(err).Msg("Could not save history")
	}
}

// Add records the outcome of a finished task and persists immediately.
func (s *Service) Add(snap task.Snapshot, success bool) Record {
	record := Record{
		ArchiveName:    filepath.Base(snap.ArchivePath),
		ArchivePath:    snap.ArchivePath,
		Destination:    snap.Destination,
		ExtractedFiles: snap.ExtractedFiles,
		ExtractedBytes: snap.ExtractedBytes,
		Timestamp:      time.Now(),
		Success:        success,
		ErrorMessage:   snap.ErrorMessage,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// newest first
	s.records = append([]Record{record}, s.records...)
	if len(s.records) > s.maxEntries {
		s.records = s.records[:s.maxEntries]
	}
	s.save()
	return record
}

// Recent returns up to count records, newest first.
func (s *Service) Recent(count int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count <= 0 || count > len(s.records) {
		count = len(s.records)
	}
	return append([]Record(nil), s.records[:count]...)
}

// Clear drops all records and persists the empty list.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.save()
	s.logger.Info().Msg("Extraction history cleared")
}
