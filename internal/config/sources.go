package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SourceKind tells where a configuration value came from.
type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
	SourceEnv     SourceKind = "env"
)

// Source locates a value: a file position, an environment variable, or the
// built-in defaults.
type Source struct {
	Kind   SourceKind
	Name   string // env variable for env sources
	File   string
	Line   int
	Column int
}

func fileSource(file string, node *yaml.Node) Source {
	return Source{Kind: SourceFile, File: file, Line: node.Line, Column: node.Column}
}

func (s Source) String() string {
	switch s.Kind {
	case SourceFile:
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	case SourceEnv:
		return "env " + s.Name
	default:
		return "default"
	}
}

// ValidationError reports an invalid value by its dotted yaml path.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Err.Error()
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	switch {
	case e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0:
		return e.Source.String() + ": " + msg
	case e.Source.Kind == SourceEnv:
		return fmt.Sprintf("%s: %v (from %s)", e.Path, e.Err, e.Source.Name)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// withSource fills in where the offending value was set.
func withSource(err error, sources map[string]Source) error {
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Path != "" {
		if src, ok := sources[verr.Path]; ok {
			verr.Source = src
		}
	}
	return err
}

// rootMapping returns the top-level mapping of a parsed document, or nil.
func rootMapping(doc *yaml.Node) *yaml.Node {
	node := doc
	if node != nil && node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	return node
}

// recordSources stores the position of every key and list item in doc under
// its dotted path (presets.coding.apps[0].path), overwriting earlier files.
func recordSources(doc *yaml.Node, file string, into map[string]Source) {
	var walk func(node *yaml.Node, prefix string)
	walk = func(node *yaml.Node, prefix string) {
		switch node.Kind {
		case yaml.MappingNode:
			for i := 0; i+1 < len(node.Content); i += 2 {
				path := node.Content[i].Value
				if prefix != "" {
					path = prefix + "." + path
				}
				val := node.Content[i+1]
				into[path] = fileSource(file, val)
				walk(val, path)
			}
		case yaml.SequenceNode:
			for i, item := range node.Content {
				path := fmt.Sprintf("%s[%d]", prefix, i)
				into[path] = fileSource(file, item)
				walk(item, path)
			}
		}
	}
	if root := rootMapping(doc); root != nil {
		walk(root, "")
	}
}

type includeRef struct {
	Value  string
	Source Source
}

// includeRefs returns the entries of the top-level include key.
func includeRefs(doc *yaml.Node, file string) []includeRef {
	root := rootMapping(doc)
	if root == nil {
		return nil
	}
	var val *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "include" {
			val = root.Content[i+1]
			break
		}
	}
	if val == nil {
		return nil
	}

	items := []*yaml.Node{val}
	if val.Kind == yaml.SequenceNode {
		items = val.Content
	}
	var refs []includeRef
	for _, item := range items {
		if item.Kind == yaml.ScalarNode {
			refs = append(refs, includeRef{Value: item.Value, Source: fileSource(file, item)})
		}
	}
	return refs
}
