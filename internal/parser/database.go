package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node is one raw configuration record from the content database.
type Node map[string]any

// Database is a read-only snapshot of the static content database.
// Nodes are grouped by their top-level key, e.g. STORAGE_TEMPLATE.
type Database struct {
	groups map[string][]Node
	files  []string
}

// NewDatabase creates a database from already decoded node groups.
func NewDatabase(groups map[string][]Node) *Database {
	db := &Database{groups: make(map[string][]Node, len(groups))}
	for name, nodes := range groups {
		db.groups[name] = append(db.groups[name], nodes...)
	}
	return db
}

// ParseDatabase decodes one content file. Top-level keys are group names,
// each holding a list of nodes (a single mapping is accepted as a one-node list).
func ParseDatabase(data []byte) (map[string][]Node, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error decoding content file: %w", err)
	}

	groups := make(map[string][]Node, len(raw))
	for group, value := range raw {
		switch v := value.(type) {
		case []any:
			for i, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("group %s: entry %d is not a mapping", group, i)
				}
				groups[group] = append(groups[group], Node(m))
			}
		case map[string]any:
			groups[group] = append(groups[group], Node(v))
		case nil:
			groups[group] = nil
		default:
			return nil, fmt.Errorf("group %s: expected a list of nodes, got %T", group, value)
		}
	}
	return groups, nil
}

// LoadDatabase reads every .yaml/.yml file under dir into one database.
// Files are read in lexical order so group contents keep a stable order.
func LoadDatabase(dir string) (*Database, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading content dir %s: %w", dir, err)
	}
	sort.Strings(files)

	db := &Database{groups: make(map[string][]Node)}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", file, err)
		}
		groups, err := ParseDatabase(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for name, nodes := range groups {
			db.groups[name] = append(db.groups[name], nodes...)
		}
		db.files = append(db.files, file)
	}
	return db, nil
}

// Nodes returns the nodes of a group, nil when the group does not exist.
func (d *Database) Nodes(group string) []Node {
	if d == nil {
		return nil
	}
	return d.groups[group]
}

// Groups returns the sorted group names.
func (d *Database) Groups() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.groups))
	for name := range d.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns the files the database was read from.
func (d *Database) Files() []string {
	return d.files
}
