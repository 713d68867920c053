// Package bundle loads policy documents from YAML files on disk and
// keeps the registry in sync with them, optionally watching the bundle
// directory for changes.
package bundle

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/rules"
)

// Document is one policy declaration in a bundle file.
type Document struct {
	Name       string   `yaml:"name"`
	Scope      string   `yaml:"scope"`
	Target     string   `yaml:"target"`
	OwnerRole  string   `yaml:"owner_role"`
	Level      string   `yaml:"level"`
	ChangeNote string   `yaml:"change_note"`
	Rules      rulesDoc `yaml:"rules"`
}

// rulesDoc mirrors rules.RuleSet for YAML decoding.
type rulesDoc struct {
	SchemaMin    int      `yaml:"schema_min"`
	SchemaMax    int      `yaml:"schema_max"`
	IncludePaths []string `yaml:"include_paths"`
	ExcludePaths []string `yaml:"exclude_paths"`
	Root         *nodeDoc `yaml:"root"`
}

// nodeDoc mirrors rules.Node for YAML decoding.
type nodeDoc struct {
	Field    string      `yaml:"field"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value"`
	Op       string      `yaml:"op"`
	Children []*nodeDoc  `yaml:"children"`
}

// Loader reads policy documents from a file or directory.
type Loader struct {
	path   string
	logger *slog.Logger
}

// NewLoader creates a bundle loader for the given path. The path may be
// a single YAML file or a directory of .yaml/.yml files.
func NewLoader(path string) *Loader {
	return &Loader{
		path:   path,
		logger: slog.Default().With("component", "registry.bundle"),
	}
}

// Load parses every policy document under the configured path.
func (l *Loader) Load() ([]*Document, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat bundle path %q: %w", l.path, err)
	}

	var docs []*Document
	if info.IsDir() {
		err = filepath.Walk(l.path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			doc, err := l.loadFile(path)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		doc, err := l.loadFile(l.path)
		if err != nil {
			return nil, err
		}
		docs = []*Document{doc}
	}

	l.logger.Info("policy bundle loaded", "path", l.path, "policy_count", len(docs))
	return docs, nil
}

// loadFile parses and validates a single bundle file.
func (l *Loader) loadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle file %q: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse bundle file %q: %w", path, err)
	}

	if doc.Name == "" {
		return nil, fmt.Errorf("bundle file %q: policy name is required", path)
	}
	if !registry.Scope(doc.Scope).Valid() {
		return nil, fmt.Errorf("bundle file %q: unknown scope %q", path, doc.Scope)
	}
	if !registry.EnforcementLevel(doc.Level).Valid() {
		return nil, fmt.Errorf("bundle file %q: unknown enforcement level %q", path, doc.Level)
	}

	rs := doc.RuleSet()
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("bundle file %q: %w", path, err)
	}

	return &doc, nil
}

// RuleSet converts the document's rules to the wire rule set.
func (d *Document) RuleSet() *rules.RuleSet {
	return &rules.RuleSet{
		SchemaMin:    d.Rules.SchemaMin,
		SchemaMax:    d.Rules.SchemaMax,
		IncludePaths: d.Rules.IncludePaths,
		ExcludePaths: d.Rules.ExcludePaths,
		Root:         convertNode(d.Rules.Root),
	}
}

// convertNode converts a YAML node declaration to a rules node.
func convertNode(n *nodeDoc) *rules.Node {
	if n == nil {
		return nil
	}
	out := &rules.Node{
		Field:    n.Field,
		Operator: rules.Operator(n.Operator),
		Value:    n.Value,
		Op:       rules.Combinator(n.Op),
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, convertNode(child))
	}
	return out
}
