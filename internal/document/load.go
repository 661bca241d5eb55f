package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownScene  = errors.New("unknown scene")
	ErrMissingObject = errors.New("missing object")
	ErrInvalidObject = errors.New("invalid object")
	ErrCycle         = errors.New("object hierarchy contains a cycle")
	ErrUnknownFormat = errors.New("unknown document format")
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

// Parse decodes and validates a document.
func Parse(data []byte, format Format) (*InDocument, error) {
	var doc InDocument
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode json document: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml document: %w", err)
		}
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads a document file, JSON or YAML by extension.
func Load(path string) (*InDocument, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LoadDir loads every .json, .yaml and .yml document in dir.
func LoadDir(dir string) ([]*InDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scene dir: %w", err)
	}
	var docs []*InDocument
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatFromPath(e.Name()); err != nil {
			continue
		}
		doc, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Marshal encodes the document.
func Marshal(doc *InDocument, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.Marshal(doc)
	case FormatYAML:
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
}

// Validate checks that every scene root exists, every child reference
// resolves, containers are the only objects with children, and the
// hierarchy below each scene root is a tree.
func (d *InDocument) Validate() error {
	for id, obj := range d.Objects {
		if obj.ID != id {
			return fmt.Errorf("object %q has id %q: %w", id, obj.ID, ErrInvalidObject)
		}
		if !obj.Type.valid() {
			return fmt.Errorf("object %q has type %q: %w", id, obj.Type, ErrInvalidObject)
		}
		if len(obj.Children) > 0 && !obj.Type.IsContainer() {
			return fmt.Errorf("object %q of type %s has children: %w", id, obj.Type, ErrInvalidObject)
		}
		if a := obj.Style.Alpha(); a < 0 || a > 1 {
			return fmt.Errorf("object %q has opacity %g: %w", id, a, ErrInvalidObject)
		}
		if obj.Style.Fill != "" {
			if _, err := ParseColor(obj.Style.Fill); err != nil {
				return fmt.Errorf("object %q: %w", id, err)
			}
		}
		for _, c := range obj.Children {
			if _, ok := d.Objects[c]; !ok {
				return fmt.Errorf("child %q of %q: %w", c, id, ErrMissingObject)
			}
		}
	}
	for id, sc := range d.Scenes {
		if _, ok := d.Objects[sc.Root]; !ok {
			return fmt.Errorf("root %q of scene %q: %w", sc.Root, id, ErrMissingObject)
		}
		if err := d.checkTree(sc.Root); err != nil {
			return fmt.Errorf("scene %q: %w", id, err)
		}
	}
	return nil
}

func (d *InDocument) checkTree(root string) error {
	seen := make(map[string]bool)
	var walk func(id string) error
	walk = func(id string) error {
		if seen[id] {
			return fmt.Errorf("object %q: %w", id, ErrCycle)
		}
		seen[id] = true
		for _, c := range d.Objects[id].Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// Scene returns the scene with the given ID, or the first scene when id is
// empty.
func (d *InDocument) Scene(id string) (Scene, error) {
	if id == "" && len(d.Project.Scenes) > 0 {
		id = d.Project.Scenes[0]
	}
	sc, ok := d.Scenes[id]
	if !ok {
		return Scene{}, fmt.Errorf("scene %q: %w", id, ErrUnknownScene)
	}
	return sc, nil
}
