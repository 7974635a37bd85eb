package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrNoTemplateDir    = errors.New("no template directory configured")
)

// Manager handles template loading and caching
type Manager struct {
	dir       string
	templates map[string]*Template
	mu        sync.RWMutex
}

// NewManager creates a template manager reading <language>.json files from
// dir. An empty dir serves only the built-in template.
func NewManager(dir string) (*Manager, error) {
	if dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("template directory does not exist: %s", dir)
		}
	}

	return &Manager{
		dir:       dir,
		templates: make(map[string]*Template),
	}, nil
}

// Load returns the template for language
func (m *Manager) Load(language string) (*Template, error) {
	key := strings.ToLower(strings.TrimSpace(language))

	m.mu.RLock()
	if t, exists := m.templates[key]; exists {
		m.mu.RUnlock()
		return t, nil
	}
	m.mu.RUnlock()

	if m.dir == "" {
		return nil, ErrTemplateNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if t, exists := m.templates[key]; exists {
		return t, nil
	}

	t, err := ReadFile(filepath.Join(m.dir, fileName(key)))
	if err != nil {
		return nil, err
	}

	m.templates[key] = t
	return t, nil
}

// Content returns the starter document for language, falling back to the
// built-in default when the language has no usable template.
func (m *Manager) Content(language string) string {
	if language == "" {
		return Builtin.Content
	}
	t, err := m.Load(language)
	if err != nil {
		return Builtin.Content
	}
	return t.Content
}

// List returns every valid template in the directory, sorted by language
func (m *Manager) List() ([]*Template, error) {
	if m.dir == "" {
		return []*Template{Builtin}, nil
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	var out []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		t, err := m.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid templates
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out, nil
}

// Save validates t and writes it to the directory
func (m *Manager) Save(t *Template) error {
	if m.dir == "" {
		return ErrNoTemplateDir
	}
	if err := Validate(t); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	key := strings.ToLower(t.Language)
	if err := os.WriteFile(filepath.Join(m.dir, fileName(key)), data, 0644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}

	m.mu.Lock()
	m.templates[key] = t
	m.mu.Unlock()
	return nil
}

// Refresh drops every cached template so edited files are read again
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = make(map[string]*Template)
}

// ReadFile parses and validates a single template file.
func ReadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func fileName(language string) string {
	return language + ".json"
}
