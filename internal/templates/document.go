package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a template document on disk.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the template encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported template file extension %q", filepath.Ext(path))
	}
}

// Document is a template file: a schema version and templates keyed by id.
type Document struct {
	Version        string               `json:"version" yaml:"version"`
	Templates      map[string]*Template `json:"templates" yaml:"templates"`
	ExportMetadata *ExportMetadata      `json:"export_metadata,omitempty" yaml:"export_metadata,omitempty"`
}

// ExportMetadata is attached by ExportAll.
type ExportMetadata struct {
	ExportDate    string `json:"export_date" yaml:"export_date"`
	ExportedBy    string `json:"exported_by" yaml:"exported_by"`
	TemplateCount int    `json:"template_count" yaml:"template_count"`
	ExportType    string `json:"export_type" yaml:"export_type"`
}

// Template is one folder-structure definition.
type Template struct {
	Name               string         `json:"templateName" yaml:"templateName"`
	Description        string         `json:"templateDescription,omitempty" yaml:"templateDescription,omitempty"`
	Structure          Structure      `json:"structure" yaml:"structure"`
	DocumentsPlacement *Placement     `json:"documentsPlacement,omitempty" yaml:"documentsPlacement,omitempty"`
	ArchiveNaming      *ArchiveNaming `json:"archiveNaming,omitempty" yaml:"archiveNaming,omitempty"`
	Metadata           *Metadata      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Structure holds the ordered folder levels.
type Structure struct {
	Levels []Level `json:"levels" yaml:"levels"`
}

// Level describes one folder in the hierarchy.
type Level struct {
	Name         string        `json:"name,omitempty" yaml:"name,omitempty"`
	Pattern      string        `json:"pattern" yaml:"pattern"`
	Fallback     string        `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Conditionals *Conditionals `json:"conditionals,omitempty" yaml:"conditionals,omitempty"`
	DateFormat   string        `json:"dateFormat,omitempty" yaml:"dateFormat,omitempty"`
	Prefix       string        `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Suffix       string        `json:"suffix,omitempty" yaml:"suffix,omitempty"`
}

// Conditionals replace the level pattern when business or location data is
// missing.
type Conditionals struct {
	BusinessOnly string `json:"business_only,omitempty" yaml:"business_only,omitempty"`
	LocationOnly string `json:"location_only,omitempty" yaml:"location_only,omitempty"`
	Neither      string `json:"neither,omitempty" yaml:"neither,omitempty"`
}

// Each calls fn for every non-empty conditional pattern.
func (c *Conditionals) Each(fn func(name, pattern string)) {
	if c == nil {
		return
	}
	if c.BusinessOnly != "" {
		fn("business_only", c.BusinessOnly)
	}
	if c.LocationOnly != "" {
		fn("location_only", c.LocationOnly)
	}
	if c.Neither != "" {
		fn("neither", c.Neither)
	}
}

// ArchiveNaming controls the ZIP file name.
type ArchiveNaming struct {
	Pattern         string `json:"pattern" yaml:"pattern"`
	FallbackPattern string `json:"fallbackPattern,omitempty" yaml:"fallbackPattern,omitempty"`
}

// Metadata is free-form bookkeeping carried through import and export.
type Metadata struct {
	Author         string   `json:"author,omitempty" yaml:"author,omitempty"`
	Agency         string   `json:"agency,omitempty" yaml:"agency,omitempty"`
	Version        string   `json:"version,omitempty" yaml:"version,omitempty"`
	Created        string   `json:"created,omitempty" yaml:"created,omitempty"`
	Modified       string   `json:"modified,omitempty" yaml:"modified,omitempty"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	ExportedDate   string   `json:"exported_date,omitempty" yaml:"exported_date,omitempty"`
	ExportedBy     string   `json:"exported_by,omitempty" yaml:"exported_by,omitempty"`
	OriginalSource string   `json:"original_source,omitempty" yaml:"original_source,omitempty"`
	ImportedFrom   string   `json:"imported_from,omitempty" yaml:"imported_from,omitempty"`
	ImportedDate   string   `json:"imported_date,omitempty" yaml:"imported_date,omitempty"`
	Notes          string   `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Placement names the level that receives the Documents folder. It decodes
// from a 0-based level index or one of the aliases occurrence, location and
// datetime.
type Placement struct {
	Level int
	Alias string
}

var placementAliases = map[string]int{
	"occurrence": 0,
	"location":   1,
	"datetime":   2,
}

// PlacementLevel returns a Placement for an explicit level index.
func PlacementLevel(n int) *Placement {
	return &Placement{Level: n}
}

// ParsePlacement accepts an alias or a decimal level index.
func ParsePlacement(s string) (*Placement, error) {
	s = strings.TrimSpace(s)
	if lvl, ok := placementAliases[strings.ToLower(s)]; ok {
		return &Placement{Level: lvl, Alias: strings.ToLower(s)}, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || fmt.Sprint(n) != s {
		return nil, fmt.Errorf("documents placement must be a level index or one of occurrence, location, datetime: %q", s)
	}
	return &Placement{Level: n}, nil
}

// Resolve clamps the placement to a hierarchy of the given depth. A nil
// placement selects the level above the deepest one.
func (p *Placement) Resolve(depth int) int {
	if depth <= 0 {
		return 0
	}
	lvl := depth - 2
	if p != nil {
		lvl = p.Level
	}
	if lvl < 0 {
		lvl = 0
	}
	if lvl > depth-1 {
		lvl = depth - 1
	}
	return lvl
}

func (p *Placement) String() string {
	if p == nil {
		return "default"
	}
	if p.Alias != "" {
		return p.Alias
	}
	return fmt.Sprint(p.Level)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Placement) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Placement{Level: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("documentsPlacement must be an integer or a string")
	}
	lvl, ok := placementAliases[s]
	if !ok {
		return fmt.Errorf("documentsPlacement %q is not one of occurrence, location, datetime", s)
	}
	*p = Placement{Level: lvl, Alias: s}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Placement) MarshalJSON() ([]byte, error) {
	if p.Alias != "" {
		return json.Marshal(p.Alias)
	}
	return json.Marshal(p.Level)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Placement) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("documentsPlacement must be a scalar")
	}
	if node.Tag == "!!int" {
		var n int
		if err := node.Decode(&n); err != nil {
			return err
		}
		*p = Placement{Level: n}
		return nil
	}
	lvl, ok := placementAliases[node.Value]
	if !ok {
		return fmt.Errorf("documentsPlacement %q is not one of occurrence, location, datetime", node.Value)
	}
	*p = Placement{Level: lvl, Alias: node.Value}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Placement) MarshalYAML() (interface{}, error) {
	if p.Alias != "" {
		return p.Alias, nil
	}
	return p.Level, nil
}

// DecodeDocument parses raw bytes into a Document. Unknown keys are errors.
func DecodeDocument(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return &doc, nil
}

// EncodeDocument renders doc in the given format.
func EncodeDocument(doc *Document, format Format) ([]byte, error) {
	if format == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// IDs returns the template ids in sorted order.
func (d *Document) IDs() []string {
	ids := make([]string, 0, len(d.Templates))
	for id := range d.Templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of t.
func (t *Template) Clone() *Template {
	out := *t
	out.Structure.Levels = make([]Level, len(t.Structure.Levels))
	for i, l := range t.Structure.Levels {
		if l.Conditionals != nil {
			c := *l.Conditionals
			l.Conditionals = &c
		}
		out.Structure.Levels[i] = l
	}
	if t.DocumentsPlacement != nil {
		p := *t.DocumentsPlacement
		out.DocumentsPlacement = &p
	}
	if t.ArchiveNaming != nil {
		a := *t.ArchiveNaming
		out.ArchiveNaming = &a
	}
	if t.Metadata != nil {
		m := *t.Metadata
		m.Tags = append([]string(nil), t.Metadata.Tags...)
		out.Metadata = &m
	}
	return &out
}
