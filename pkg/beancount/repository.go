package beancount

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/pathutil"
)

// Repository defines the interface for Beancount file operations.
type Repository interface {
	// AppendTransaction appends a transaction to a monthly file
	AppendTransaction(yearMonth, transaction string, comment ...string) error

	// ReadMonthFile reads the content of a monthly file
	ReadMonthFile(yearMonth string) (string, error)

	// MonthFileExists checks if a monthly file exists
	MonthFileExists(yearMonth string) bool

	// ListMonthFiles gets all monthly files under the root, oldest first
	ListMonthFiles() ([]string, error)

	// EnsureMonthFile ensures a monthly file exists with header
	EnsureMonthFile(yearMonth string) error

	// EnsureOpened adds open directives for accounts not opened yet
	EnsureOpened(accounts []string, currency, date string) ([]string, error)

	// WriteMainFile rewrites the file that includes every other file
	WriteMainFile(currency string) error
}

const accountsFileName = "accounts.beancount"

// FileSystemRepository is a file system implementation of Repository.
type FileSystemRepository struct {
	pathResolver *pathutil.PathResolver
	now          func() time.Time
}

// NewFileSystemRepository creates a new FileSystemRepository.
func NewFileSystemRepository(pathResolver *pathutil.PathResolver) *FileSystemRepository {
	return &FileSystemRepository{
		pathResolver: pathResolver,
		now:          time.Now,
	}
}

// AppendTransaction appends a transaction to a monthly file.
// It creates the file if it doesn't exist.
func (r *FileSystemRepository) AppendTransaction(yearMonth, transaction string, comment ...string) error {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return fmt.Errorf("failed to get month file path: %w", err)
	}

	// Ensure file exists with header
	if err := r.EnsureMonthFile(yearMonth); err != nil {
		return fmt.Errorf("failed to ensure month file: %w", err)
	}

	// Prepare content to append
	var content string
	if len(comment) > 0 && comment[0] != "" {
		content += fmt.Sprintf("; %s\n", comment[0])
	}
	content += transaction
	if len(transaction) > 0 && transaction[len(transaction)-1] != '\n' {
		content += "\n"
	}
	content += "\n" // Add blank line after transaction

	return appendFile(filePath, content)
}

// ReadMonthFile reads the content of a monthly file.
// Returns empty string if file doesn't exist.
func (r *FileSystemRepository) ReadMonthFile(yearMonth string) (string, error) {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to get month file path: %w", err)
	}

	if !r.pathResolver.FileExists(filePath) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return string(data), nil
}

// MonthFileExists checks if a monthly file exists.
func (r *FileSystemRepository) MonthFileExists(yearMonth string) bool {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return false
	}

	return r.pathResolver.FileExists(filePath)
}

// ListMonthFiles gets all monthly files under the Beancount root.
// Returns a sorted slice of year-month strings (e.g., ["2024-01", "2024-02"]).
func (r *FileSystemRepository) ListMonthFiles() ([]string, error) {
	root := r.pathResolver.GetBeancountRoot()
	if !r.pathResolver.FileExists(root) {
		return []string{}, nil
	}

	years, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read beancount root: %w", err)
	}

	monthFiles := []string{}
	for _, year := range years {
		if !year.IsDir() {
			continue
		}

		entries, err := os.ReadDir(r.pathResolver.GetYearDir(year.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read year directory: %w", err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || filepath.Ext(name) != ".beancount" {
				continue
			}
			// Remove .beancount extension to get YYYY-MM
			monthKey := strings.TrimSuffix(name, ".beancount")
			if _, err := r.pathResolver.GetMonthFilePath(monthKey); err == nil {
				monthFiles = append(monthFiles, monthKey)
			}
		}
	}

	sort.Strings(monthFiles)
	return monthFiles, nil
}

// EnsureMonthFile ensures a monthly file exists with header.
// If the file already exists, this is a no-op.
func (r *FileSystemRepository) EnsureMonthFile(yearMonth string) error {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return fmt.Errorf("failed to get month file path: %w", err)
	}

	if r.pathResolver.FileExists(filePath) {
		return nil
	}

	// Ensure parent directory exists
	if err := r.pathResolver.EnsureParentDir(filePath); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	// Create file with header
	header := r.generateFileHeader(yearMonth)
	if err := os.WriteFile(filePath, []byte(header), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// EnsureOpened appends an open directive dated date for every account that
// the accounts file does not open yet. It returns the newly opened accounts.
func (r *FileSystemRepository) EnsureOpened(accounts []string, currency, date string) ([]string, error) {
	filePath := filepath.Join(r.pathResolver.GetBeancountRoot(), accountsFileName)

	opened, err := readOpenedAccounts(filePath)
	if err != nil {
		return nil, err
	}

	var added []string
	var sb strings.Builder
	for _, account := range accounts {
		if opened[account] {
			continue
		}
		opened[account] = true
		added = append(added, account)
		sb.WriteString(fmt.Sprintf("%s open %s %s\n", date, account, currency))
	}
	if len(added) == 0 {
		return nil, nil
	}

	if err := r.pathResolver.EnsureParentDir(filePath); err != nil {
		return nil, fmt.Errorf("failed to ensure parent directory: %w", err)
	}
	if err := appendFile(filePath, sb.String()); err != nil {
		return nil, err
	}

	return added, nil
}

// WriteMainFile rewrites main.beancount so it includes the accounts file and
// every monthly file.
func (r *FileSystemRepository) WriteMainFile(currency string) error {
	months, err := r.ListMonthFiles()
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("; Generated by smartspend\n")
	sb.WriteString(fmt.Sprintf("option \"operating_currency\" \"%s\"\n\n", currency))
	sb.WriteString(fmt.Sprintf("include \"%s\"\n", accountsFileName))
	for _, month := range months {
		sb.WriteString(fmt.Sprintf("include \"%s/%s.beancount\"\n", month[:4], month))
	}

	mainPath := r.pathResolver.GetMainFilePath()
	if err := r.pathResolver.EnsureParentDir(mainPath); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}
	if err := os.WriteFile(mainPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write main file: %w", err)
	}

	return nil
}

// generateFileHeader generates a header comment for a monthly file.
func (r *FileSystemRepository) generateFileHeader(yearMonth string) string {
	now := r.now().Format(time.RFC3339)
	return fmt.Sprintf("; Beancount file for %s\n; Generated at %s\n\n", yearMonth, now)
}

func appendFile(filePath, content string) error {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file for appending: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	return nil
}

// readOpenedAccounts collects the accounts of every open directive in filePath.
func readOpenedAccounts(filePath string) (map[string]bool, error) {
	opened := make(map[string]bool)

	f, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return opened, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 3 && fields[1] == "open" {
			opened[fields[2]] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	return opened, nil
}
