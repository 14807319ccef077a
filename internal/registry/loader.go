package registry

import (
	"log/slog"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/OCAP2/partswitch/internal/parser"
	"github.com/OCAP2/partswitch/pkg/core"
)

// Loader parses template sources once per process and hands the same backing
// slice to every host asking for the same source list.
type Loader struct {
	mu     sync.Mutex
	db     *parser.Database
	parser *parser.Parser
	logger *slog.Logger
	index  *gocache.Cache
}

// NewLoader creates a loader over a content database.
func NewLoader(db *parser.Database, p *parser.Parser, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		db:     db,
		parser: p,
		logger: logger,
		index:  gocache.New(gocache.NoExpiration, 0),
	}
}

// Templates returns the parsed templates for the source list, parsing them
// on first use. Loading holds a lock so concurrent first callers wait for a
// single parse.
func (l *Loader) Templates(sourceNames []string) []core.Template {
	key := sourceKey(sourceNames)

	if cached, ok := l.index.Get(key); ok {
		return cached.([]core.Template)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.index.Get(key); ok {
		return cached.([]core.Template)
	}

	templates := l.parser.ParseTemplates(l.db, sourceNames)
	if len(templates) == 0 {
		l.logger.Warn("No templates loaded", "sources", key)
	} else {
		l.logger.Info("Templates loaded", "sources", key, "count", len(templates))
	}
	l.index.Set(key, templates, gocache.NoExpiration)
	return templates
}

// Load builds a host registry over the memoized templates of sourceNames.
func (l *Loader) Load(sourceNames []string, tagFilter []string, env Env) *Registry {
	return New(l.Templates(sourceNames), env, WithTagFilter(tagFilter...))
}

// Reset drops every memoized index, e.g. after the content database changed.
func (l *Loader) Reset() {
	l.index.Flush()
}

// Cached returns the number of memoized source lists.
func (l *Loader) Cached() int {
	return l.index.ItemCount()
}

func sourceKey(sourceNames []string) string {
	parts := make([]string, 0, len(sourceNames))
	for _, s := range sourceNames {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ";")
}
