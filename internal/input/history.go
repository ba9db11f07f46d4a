package input

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// History is the persistent command history.
type History struct {
	Commands []string `json:"commands"`
	filePath string   // not serialized
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{Commands: make([]string, 0)}
}

// HistoryPath returns the path to the history file.
func HistoryPath() (string, error) {
	var configDir string

	// Check for environment variable override
	if envConfigDir := os.Getenv("GOFUGUE_CONFIG_DIR"); envConfigDir != "" {
		configDir = envConfigDir
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "gofugue")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "history.json"), nil
}

// LoadHistory loads command history from disk.
func LoadHistory() (*History, error) {
	historyPath, err := HistoryPath()
	if err != nil {
		return nil, err
	}
	return LoadHistoryFromPath(historyPath)
}

// LoadHistoryFromPath loads history from a specific path (useful for
// testing).
func LoadHistoryFromPath(historyPath string) (*History, error) {
	data, err := os.ReadFile(historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty history if file doesn't exist
			h := NewHistory()
			h.filePath = historyPath
			return h, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	h.filePath = historyPath
	return &h, nil
}

// Save saves command history to disk.
func (h *History) Save() error {
	historyPath := h.filePath
	if historyPath == "" {
		var err error
		historyPath, err = HistoryPath()
		if err != nil {
			return err
		}
		h.filePath = historyPath
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.WriteFile(historyPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

// Add appends a command, skipping consecutive duplicates.
func (h *History) Add(command string) {
	if command == "" {
		return
	}
	if len(h.Commands) > 0 && h.Commands[len(h.Commands)-1] == command {
		return
	}
	h.Commands = append(h.Commands, command)
}

// Len returns the number of stored commands.
func (h *History) Len() int { return len(h.Commands) }

// At returns the i-th command, oldest first.
func (h *History) At(i int) string { return h.Commands[i] }
