package content

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

//go:embed defaults/units.yaml
var defaultCatalog []byte

// CatalogFile is the optional catalog override inside the content directory.
const CatalogFile = "units.yaml"

const defaultDebounce = 200 * time.Millisecond

type cachedText struct {
	text string
	ok   bool
}

// FileProvider reads content from a directory laid out as
//
//	tasks/<unit>.txt
//	prompts/<unit>.md
//	units.yaml
//
// and caches what it reads until the next Reload.
type FileProvider struct {
	dir      string
	log      *slog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	units   map[string]Unit
	order   []string
	tasks   map[string]cachedText
	prompts map[string]cachedText
}

// NewFileProvider loads the unit catalog. A missing directory is not an
// error; every lookup then falls back to built-in content.
func NewFileProvider(dir string, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FileProvider{dir: dir, log: logger, debounce: defaultDebounce}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the catalog and drops cached task and prompt text.
// On error the previous content stays in place.
func (p *FileProvider) Reload() error {
	units, order, err := p.loadCatalog()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.units = units
	p.order = order
	p.tasks = make(map[string]cachedText)
	p.prompts = make(map[string]cachedText)
	return nil
}

func (p *FileProvider) loadCatalog() (map[string]Unit, []string, error) {
	var base catalogFile
	if err := yaml.Unmarshal(defaultCatalog, &base); err != nil {
		return nil, nil, fmt.Errorf("parse built-in catalog: %w", err)
	}

	units := make(map[string]Unit, len(base.Units))
	var order []string
	add := func(u Unit) {
		if _, seen := units[u.Name]; !seen {
			order = append(order, u.Name)
		}
		units[u.Name] = u
	}
	for _, u := range base.Units {
		add(u)
	}

	if p.dir == "" {
		return units, order, nil
	}
	raw, err := os.ReadFile(filepath.Join(p.dir, CatalogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return units, order, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog: %w", err)
	}

	var override catalogFile
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, nil, fmt.Errorf("parse catalog %s: %w", CatalogFile, err)
	}
	for _, u := range override.Units {
		if u.Name = strings.TrimSpace(u.Name); u.Name == "" {
			continue
		}
		add(u)
	}
	return units, order, nil
}

// TaskText returns the unit's task statement.
func (p *FileProvider) TaskText(unit string) string {
	if text, ok := p.cached(unit, "tasks", ".txt", strings.TrimSpace); ok && text != "" {
		return text
	}
	return PlaceholderTask(unit)
}

// UnitInstruction returns the instruction sections of the unit prompt.
func (p *FileProvider) UnitInstruction(unit string) string {
	if text, ok := p.cached(unit, "prompts", ".md", extractInstruction); ok && text != "" {
		return text
	}
	return DefaultInstruction
}

// OpeningQuestion returns the catalog's opening question for a chat stage,
// falling back to a generic one.
func (p *FileProvider) OpeningQuestion(unit string, stage domain.Stage) string {
	if u, ok := p.Unit(unit); ok {
		if q := strings.TrimSpace(u.OpeningQuestions[stage]); q != "" {
			return q
		}
	}
	return defaultOpeningQuestions[stage]
}

// Unit returns the catalog entry for name.
func (p *FileProvider) Unit(name string) (Unit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.units[name]
	return u, ok
}

// Units returns the catalog's unit names in order.
func (p *FileProvider) Units() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

func (p *FileProvider) cached(unit, sub, ext string, transform func(string) string) (string, bool) {
	if !safeUnitName(unit) || p.dir == "" {
		return "", false
	}

	p.mu.RLock()
	c, hit := p.liveCache(sub)[unit]
	p.mu.RUnlock()
	if hit {
		return c.text, c.ok
	}

	path := filepath.Join(p.dir, sub, unit+ext)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.log.Warn("Failed to read content file", "path", path, "error", err)
		}
		c = cachedText{}
	} else {
		c = cachedText{text: transform(string(raw)), ok: true}
	}

	p.mu.Lock()
	p.liveCache(sub)[unit] = c
	p.mu.Unlock()
	return c.text, c.ok
}

func (p *FileProvider) liveCache(sub string) map[string]cachedText {
	if sub == "tasks" {
		return p.tasks
	}
	return p.prompts
}

func safeUnitName(unit string) bool {
	return unit != "" && !strings.Contains(unit, "..") && !strings.ContainsAny(unit, `/\`)
}
