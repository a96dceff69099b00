// Package converter provides conversion from ledger transactions to Beancount format.
package converter

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// AccountMapping maps a ledger account id to a Beancount account.
type AccountMapping struct {
	ID        string `yaml:"id"`
	Beancount string `yaml:"beancount"`
}

// CategoryMapping maps a transaction category to a Beancount account.
type CategoryMapping struct {
	Category  string `yaml:"category"`
	Beancount string `yaml:"beancount"`
}

// MappingConfig represents the complete mapping file.
type MappingConfig struct {
	Currency string            `yaml:"currency"`
	Accounts []AccountMapping  `yaml:"accounts"`
	Income   []CategoryMapping `yaml:"income"`
	Expenses []CategoryMapping `yaml:"expenses"`
	Defaults struct {
		Account string `yaml:"account"`
		Income  string `yaml:"income"`
		Expense string `yaml:"expense"`
	} `yaml:"defaults"`
}

// Mapper maps ledger account ids and categories to Beancount account names.
type Mapper struct {
	config   MappingConfig
	accounts map[string]string
	income   map[string]string
	expenses map[string]string
}

// NewMapper creates a new Mapper from a YAML configuration file.
func NewMapper(configPath string) (*Mapper, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseMapper(data)
}

// ParseMapper creates a new Mapper from YAML content.
func ParseMapper(data []byte) (*Mapper, error) {
	var config MappingConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return NewMapperFromConfig(config)
}

// NewMapperFromConfig creates a Mapper from an in-memory configuration.
// The zero MappingConfig maps everything to default accounts.
func NewMapperFromConfig(config MappingConfig) (*Mapper, error) {
	if config.Defaults.Account == "" {
		config.Defaults.Account = "Assets"
	}
	if config.Defaults.Income == "" {
		config.Defaults.Income = "Income"
	}
	if config.Defaults.Expense == "" {
		config.Defaults.Expense = "Expenses"
	}

	mapper := &Mapper{
		config:   config,
		accounts: make(map[string]string),
		income:   make(map[string]string),
		expenses: make(map[string]string),
	}

	if err := mapper.buildMappingMaps(); err != nil {
		return nil, err
	}

	return mapper, nil
}

// buildMappingMaps builds internal mapping maps from configuration.
func (m *Mapper) buildMappingMaps() error {
	for _, mapping := range m.config.Accounts {
		if mapping.ID == "" || mapping.Beancount == "" {
			return fmt.Errorf("account mapping needs both id and beancount: %+v", mapping)
		}
		m.accounts[mapping.ID] = mapping.Beancount
	}

	for _, mapping := range m.config.Income {
		if mapping.Beancount == "" {
			return fmt.Errorf("income mapping for %q has no beancount account", mapping.Category)
		}
		m.income[strings.ToLower(mapping.Category)] = mapping.Beancount
	}

	for _, mapping := range m.config.Expenses {
		if mapping.Beancount == "" {
			return fmt.Errorf("expense mapping for %q has no beancount account", mapping.Category)
		}
		m.expenses[strings.ToLower(mapping.Category)] = mapping.Beancount
	}

	return nil
}

// Currency returns the currency configured in the mapping file, if any.
func (m *Mapper) Currency() string {
	return m.config.Currency
}

// GetAccount returns the Beancount account for a ledger account id.
// Unmapped ids fall back to {defaults.account}:{Id}.
func (m *Mapper) GetAccount(id string) string {
	if account := m.accounts[id]; account != "" {
		return account
	}
	return m.config.Defaults.Account + ":" + sanitizeAccountName(id)
}

// GetIncomeAccount returns the Beancount account for an income category.
func (m *Mapper) GetIncomeAccount(category string) string {
	if account := m.income[strings.ToLower(category)]; account != "" {
		return account
	}
	return m.config.Defaults.Income + ":" + sanitizeAccountName(categoryOrOther(category))
}

// GetExpenseAccount returns the Beancount account for an expense category.
func (m *Mapper) GetExpenseAccount(category string) string {
	if account := m.expenses[strings.ToLower(category)]; account != "" {
		return account
	}
	return m.config.Defaults.Expense + ":" + sanitizeAccountName(categoryOrOther(category))
}

// HasAccountMapping checks if a mapping exists for a ledger account id.
func (m *Mapper) HasAccountMapping(id string) bool {
	_, ok := m.accounts[id]
	return ok
}

func categoryOrOther(category string) string {
	if strings.TrimSpace(category) == "" {
		return "Other"
	}
	return category
}

// sanitizeAccountName turns free text into one Beancount account component:
// words are capitalized and joined, anything but letters and digits is dropped.
func sanitizeAccountName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var sb strings.Builder
	for _, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		sb.WriteString(string(runes))
	}

	if sb.Len() == 0 {
		return "Unknown"
	}
	return sb.String()
}
