package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cast"

	"github.com/OCAP2/partswitch/pkg/core"
)

// Parser converts raw content database nodes into templates.
// Data errors never abort a load: the offending template or field is
// skipped or defaulted and a diagnostic is logged.
type Parser struct {
	logger    *slog.Logger
	installed PackageSet
}

// NewParser creates a parser. installed resolves "needs" expressions.
func NewParser(logger *slog.Logger, installed PackageSet) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if installed == nil {
		installed = Packages()
	}
	return &Parser{
		logger:    logger,
		installed: installed,
	}
}

// ParseTemplates reads the named groups from db, in order, keeping only the
// templates whose needs expression holds. Duplicate short names keep the
// first occurrence.
func (p *Parser) ParseTemplates(db *Database, sourceNames []string) []core.Template {
	var templates []core.Template
	seen := make(map[string]struct{})
	matched := false

	for _, source := range sourceNames {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		nodes := db.Nodes(source)
		if nodes == nil {
			continue
		}
		matched = true

		for i, node := range nodes {
			t, err := p.ParseTemplate(node)
			if err != nil {
				p.logger.Warn("Skipping template", "source", source, "index", i, "error", err)
				continue
			}
			if needs := cast.ToString(node["needs"]); !EvalNeeds(needs, p.installed) {
				p.logger.Debug("Template needs not met", "template", t.Name, "needs", needs)
				continue
			}
			if _, dup := seen[t.Name]; dup {
				p.logger.Warn("Duplicate template name, keeping first", "template", t.Name, "source", source)
				continue
			}
			seen[t.Name] = struct{}{}
			t.Source = source
			templates = append(templates, t)
		}
	}

	if !matched {
		p.logger.Error("No template source matched", "sources", strings.Join(sourceNames, ";"))
	}
	return templates
}

// ParseTemplate decodes one template node. A missing short name is an error;
// unparsable optional fields are defaulted and logged.
func (p *Parser) ParseTemplate(node Node) (core.Template, error) {
	name := strings.TrimSpace(cast.ToString(node["name"]))
	if name == "" {
		return core.Template{}, fmt.Errorf("template has no name")
	}

	t := core.Template{
		Name:             name,
		Title:            cast.ToString(node["title"]),
		Description:      cast.ToString(node["description"]),
		TechRequired:     cast.ToString(node["techRequired"]),
		RequiredPackages: stringList(node["requiredPackages"]),
		RequiredModule:   cast.ToString(node["requiredModule"]),
		Tags:             stringList(node["tags"]),
		Decals:           stringList(node["decals"]),
	}

	if price, ok := asNode(node["price"]); ok {
		t.Price = core.Price{
			Resource: cast.ToString(price["resource"]),
			Amount:   p.float(name, "price.amount", price["amount"]),
			Skill:    cast.ToString(price["skill"]),
		}
	}

	for i, raw := range asList(node["resources"]) {
		r, ok := asNode(raw)
		if !ok {
			p.logger.Warn("Resource entry is not a node", "template", name, "index", i)
			continue
		}
		res := core.ResourceDescriptor{
			Name:       strings.TrimSpace(cast.ToString(r["name"])),
			MaxAmount:  p.float(name, "resources.maxAmount", r["maxAmount"]),
			Persistent: p.boolean(name, "resources.persistent", r["persistent"]),
		}
		if res.Name == "" {
			p.logger.Warn("Resource has no name", "template", name, "index", i)
			continue
		}
		t.Resources = append(t.Resources, res)
	}

	for i, raw := range asList(node["modules"]) {
		m, ok := asNode(raw)
		if !ok {
			p.logger.Warn("Module entry is not a node", "template", name, "index", i)
			continue
		}
		desc := core.CapabilityDescriptor{
			Type:             strings.TrimSpace(cast.ToString(m["type"])),
			TechRequired:     cast.ToString(m["techRequired"]),
			RequiredPackages: stringList(m["requiredPackages"]),
		}
		if desc.Type == "" {
			p.logger.Warn("Module has no type", "template", name, "index", i)
			continue
		}
		if cfg, ok := asNode(m["config"]); ok {
			desc.Config = map[string]any(cfg)
		}
		t.Capabilities = append(t.Capabilities, desc)
	}

	for i, raw := range asList(node["converters"]) {
		c, ok := asNode(raw)
		if !ok {
			p.logger.Warn("Converter entry is not a node", "template", name, "index", i)
			continue
		}
		w := core.WorkerDescriptor{
			Name:           strings.TrimSpace(cast.ToString(c["name"])),
			RequiredModule: cast.ToString(c["requiredModule"]),
			Inputs:         p.ratios(name, c["inputs"]),
			Outputs:        p.ratios(name, c["outputs"]),
		}
		if w.Name == "" {
			p.logger.Warn("Converter has no name", "template", name, "index", i)
			continue
		}
		if cfg, ok := asNode(c["config"]); ok {
			w.Config = map[string]any(cfg)
		}
		t.Workers = append(t.Workers, w)
	}

	return t, nil
}

func (p *Parser) ratios(template string, raw any) []core.Ratio {
	var out []core.Ratio
	for _, item := range asList(raw) {
		r, ok := asNode(item)
		if !ok {
			continue
		}
		resource := strings.TrimSpace(cast.ToString(r["resource"]))
		if resource == "" {
			p.logger.Warn("Converter ratio has no resource", "template", template)
			continue
		}
		out = append(out, core.Ratio{
			Resource: resource,
			Ratio:    p.float(template, "ratio", r["ratio"]),
		})
	}
	return out
}

func (p *Parser) float(template, field string, v any) float64 {
	if v == nil {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		p.logger.Warn("Unparsable number, defaulting to 0", "template", template, "field", field, "value", v)
		return 0
	}
	return f
}

func (p *Parser) boolean(template, field string, v any) bool {
	if v == nil {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		p.logger.Warn("Unparsable flag, defaulting to false", "template", template, "field", field, "value", v)
		return false
	}
	return b
}

func asNode(v any) (Node, bool) {
	switch m := v.(type) {
	case Node:
		return m, true
	case map[string]any:
		return Node(m), true
	}
	return nil, false
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case nil:
		return nil
	default:
		return []any{l}
	}
}

// stringList accepts a YAML list or a single string separated by ';' or ','.
func stringList(v any) []string {
	var parts []string
	switch l := v.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range l {
			parts = append(parts, cast.ToString(item))
		}
	case []string:
		parts = l
	default:
		parts = strings.FieldsFunc(cast.ToString(v), func(r rune) bool { return r == ';' || r == ',' })
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
