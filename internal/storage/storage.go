package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// File names inside a data directory
const (
	VisitsFile = "visits.jsonl"
	ConfigFile = "config.json"
)

// Recorder persists visits as they are reported
type Recorder interface {
	SaveVisit(visit types.Visit) error
	Close() error
}

// Storage appends visits to a JSONL log
type Storage struct {
	dataDir string
	mu      sync.Mutex
	jsonl   *os.File
}

// New creates a new storage instance
func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	jsonlPath := filepath.Join(dataDir, VisitsFile)
	file, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		jsonl:   file,
	}, nil
}

// SaveVisit appends one visit
func (s *Storage) SaveVisit(visit types.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(visit)
	if err != nil {
		return fmt.Errorf("failed to marshal visit: %w", err)
	}

	if _, err := s.jsonl.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write visit: %w", err)
	}

	return nil
}

// SaveConfig writes the effective configuration next to the visit log
func (s *Storage) SaveConfig(config types.Config) error {
	configPath := filepath.Join(s.dataDir, ConfigFile)

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// LoadConfig reads the configuration SaveConfig recorded in dataDir
func LoadConfig(dataDir string) (types.Config, error) {
	configPath := filepath.Join(dataDir, ConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return types.Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var config types.Config
	if err := json.Unmarshal(data, &config); err != nil {
		return types.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// Close closes the storage
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jsonl != nil {
		err := s.jsonl.Close()
		s.jsonl = nil
		return err
	}

	return nil
}

// LoadVisits reads every visit recorded in dataDir. Lines that do not
// decode are skipped; a missing log yields no visits.
func LoadVisits(dataDir string) ([]types.Visit, error) {
	file, err := os.Open(filepath.Join(dataDir, VisitsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Visit{}, nil
		}
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	visits := make([]types.Visit, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var visit types.Visit
		if err := json.Unmarshal(line, &visit); err == nil {
			visits = append(visits, visit)
		}
	}

	if err := scanner.Err(); err != nil {
		return visits, fmt.Errorf("failed to read JSONL file: %w", err)
	}

	return visits, nil
}
