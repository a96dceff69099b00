// Package pathutil provides centralized path management for the smartspend
// data directory and Beancount export files.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver manages paths for the database, mapping file and Beancount files.
type PathResolver struct {
	home          string
	databasePath  string
	beancountRoot string
	mappingFile   string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// Home is the smartspend data directory (e.g., ~/.smartspend)
	Home string
	// DatabasePath is the path to the SQLite database file
	DatabasePath string
	// BeancountRoot is the root directory for exported Beancount files
	BeancountRoot string
	// MappingFile is the YAML file mapping ledger accounts and categories to Beancount accounts
	MappingFile string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {Home}/smartspend.db
// If BeancountRoot is empty, it defaults to {Home}/beancount
// If MappingFile is empty, it defaults to {Home}/mapping.yaml
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.Home, "smartspend.db")
	}

	beancountRoot := config.BeancountRoot
	if beancountRoot == "" {
		beancountRoot = filepath.Join(config.Home, "beancount")
	}

	mappingFile := config.MappingFile
	if mappingFile == "" {
		mappingFile = filepath.Join(config.Home, "mapping.yaml")
	}

	return &PathResolver{
		home:          config.Home,
		databasePath:  dbPath,
		beancountRoot: beancountRoot,
		mappingFile:   mappingFile,
	}
}

// GetHome returns the data directory.
func (p *PathResolver) GetHome() string {
	return p.home
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetBeancountRoot returns the Beancount root directory.
func (p *PathResolver) GetBeancountRoot() string {
	return p.beancountRoot
}

// GetMappingFile returns the mapping file path.
func (p *PathResolver) GetMappingFile() string {
	return p.mappingFile
}

// GetMainFilePath returns the Beancount file that includes every month.
func (p *PathResolver) GetMainFilePath() string {
	return filepath.Join(p.beancountRoot, "main.beancount")
}

// GetYearDir returns the directory path for a year.
// Example: ~/.smartspend/beancount/2024
func (p *PathResolver) GetYearDir(year string) string {
	return filepath.Join(p.beancountRoot, year)
}

// GetMonthFilePath returns the file path for a month.
// yearMonth should be in YYYY-MM format.
// Example: ~/.smartspend/beancount/2024/2024-01.beancount
func (p *PathResolver) GetMonthFilePath(yearMonth string) (string, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid year-month format: %s. Expected YYYY-MM", yearMonth)
	}

	year := parts[0]
	yearDir := p.GetYearDir(year)
	filename := fmt.Sprintf("%s.beancount", yearMonth)

	return filepath.Join(yearDir, filename), nil
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return p.EnsureDir(dir)
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
