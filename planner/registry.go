package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// pluginPrefix is the filename prefix external planner binaries must carry
// to be picked up by discovery.
const pluginPrefix = "flotilla-planner-"

// EntryKind distinguishes in-process planners from external plugin
// binaries.
type EntryKind string

const (
	KindBuiltin  EntryKind = "builtin"
	KindExternal EntryKind = "external"
)

// Fingerprint identifies a discovered planner's content. The modification
// time catches touch-only changes a content hash alone would miss.
type Fingerprint struct {
	SHA256  string
	ModTime time.Time
}

// Entry is the registry's metadata record for one discoverable planner.
// For builtins Path is empty; for externals it is the plugin binary path.
type Entry struct {
	Name        string
	Kind        EntryKind
	Version     string
	Path        string
	Fingerprint Fingerprint
}

// Blueprint registers an in-process planner. New is never called during
// discovery; only Load invokes it.
type Blueprint struct {
	Name        string
	Version     string
	Description string
	New         func() Planner
}

// Registry catalogues the planners available for selection. Discovery
// records names, locations and fingerprints without executing any planner
// code; only whitelisted names are admitted.
type Registry struct {
	mu         sync.RWMutex
	whitelist  map[string]bool
	blueprints map[string]Blueprint
	pluginDirs []string
	entries    map[string]Entry
	logger     hclog.Logger
}

// NewRegistry builds a registry constrained to the given whitelist.
// An empty whitelist admits nothing.
func NewRegistry(whitelist []string, pluginDirs []string, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	wl := make(map[string]bool, len(whitelist))
	for _, name := range whitelist {
		wl[name] = true
	}
	return &Registry{
		whitelist:  wl,
		blueprints: make(map[string]Blueprint),
		pluginDirs: pluginDirs,
		entries:    make(map[string]Entry),
		logger:     logger.Named("registry"),
	}
}

// RegisterBuiltin makes a blueprint available for discovery. Registration
// alone does not admit the planner; it must also pass the whitelist during
// Discover.
func (r *Registry) RegisterBuiltin(bp Blueprint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blueprints[bp.Name] = bp
}

// Discover rebuilds the entry set from registered blueprints and plugin
// directory scans. Unreadable plugin binaries are logged and skipped
// without disturbing the rest of the registry. No planner code runs.
func (r *Registry) Discover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make(map[string]Entry)

	for name, bp := range r.blueprints {
		if !r.whitelist[name] {
			continue
		}
		sum := sha256.Sum256([]byte(name + "@" + bp.Version))
		entries[name] = Entry{
			Name:    name,
			Kind:    KindBuiltin,
			Version: bp.Version,
			Fingerprint: Fingerprint{
				SHA256: hex.EncodeToString(sum[:]),
			},
		}
	}

	for _, dir := range r.pluginDirs {
		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			r.logger.Warn("skipping unreadable plugin directory", "dir", dir, "error", err)
			continue
		}
		for _, de := range dirEntries {
			if de.IsDir() || !strings.HasPrefix(de.Name(), pluginPrefix) {
				continue
			}
			name := strings.TrimPrefix(de.Name(), pluginPrefix)
			if !r.whitelist[name] {
				continue
			}
			path := filepath.Join(dir, de.Name())
			fp, err := fingerprintFile(path)
			if err != nil {
				r.logger.Warn("skipping unreadable planner plugin", "path", path, "error", err)
				continue
			}
			entries[name] = Entry{
				Name:        name,
				Kind:        KindExternal,
				Path:        path,
				Fingerprint: fp,
			}
		}
	}

	r.entries = entries
	r.logger.Debug("discovery complete", "planners", len(entries))
	return nil
}

func fingerprintFile(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	return Fingerprint{
		SHA256:  hex.EncodeToString(h.Sum(nil)),
		ModTime: info.ModTime(),
	}, nil
}

// ListNames returns the names of all discovered planners in sorted order.
// Pure metadata read.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the entry for a discovered planner.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Blueprint returns the registered blueprint for a builtin planner.
func (r *Registry) Blueprint(name string) (Blueprint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.blueprints[name]
	return bp, ok
}
