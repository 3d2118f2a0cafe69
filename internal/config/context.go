package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tOgg1/chatsync/internal/models"
)

// Context is the view the CLI reopens by default: the selected list and
// its filter.
type Context struct {
	List      string        `yaml:"list,omitempty"`
	Filter    models.Filter `yaml:"filter,omitempty"`
	Collapsed bool          `yaml:"collapsed,omitempty"`
	UpdatedAt time.Time     `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no context is set.
func (c *Context) IsEmpty() bool {
	return c.List == "" && c.Filter.IsZero() && !c.Collapsed
}

// Clear removes all context.
func (c *Context) Clear() {
	*c = Context{UpdatedAt: time.Now()}
}

// SetList selects a list. The filter belongs to the previous list and is
// dropped.
func (c *Context) SetList(list models.ListID) {
	if string(list) != c.List {
		c.Filter = models.Filter{}
	}
	c.List = string(list)
	c.UpdatedAt = time.Now()
}

// SetFilter sets the filter of the selected list.
func (c *Context) SetFilter(filter models.Filter) {
	c.Filter = filter
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no context set)"
	}
	var parts []string
	if c.List != "" {
		parts = append(parts, "list:"+c.List)
	}
	if q := strings.TrimSpace(c.Filter.Query); q != "" {
		parts = append(parts, fmt.Sprintf("query:%q", q))
	}
	if c.Filter.UnreadOnly {
		parts = append(parts, "unread")
	}
	if c.Filter.MutedOnly {
		parts = append(parts, "muted")
	}
	if c.Filter.MentionsOnly {
		parts = append(parts, "mentions")
	}
	if c.Collapsed {
		parts = append(parts, "archive:collapsed")
	}
	return strings.Join(parts, " ")
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/chatsync/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "chatsync", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
