package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
	"gopkg.in/yaml.v3"
)

// Context hands the views of one image to a module
type Context struct {
	Archive    *psx.ArchiveView
	Executable *psx.ExecutableView
}

func (c *Context) archive(module string) (*psx.ArchiveView, error) {
	if c.Archive == nil {
		return nil, common.ConfigError("module needs the archive but the plan declares none").In(module)
	}
	return c.Archive, nil
}

func (c *Context) executable(module string) (*psx.ExecutableView, error) {
	if c.Executable == nil {
		return nil, common.ConfigError("module needs the executable but the plan declares none").In(module)
	}
	return c.Executable, nil
}

// Module is one table transformation driven by a descriptor.
// Apply must validate everything it can before its first write; the driver
// rolls back any writes made before an error.
type Module interface {
	Name() string
	Enabled() bool
	Apply(ctx *Context, rep *ModuleReport) error
}

// Verifiable modules can re-check their post-conditions on a written image
type Verifiable interface {
	Module
	VerifyEnabled() bool
	Verify(ctx *Context) ([]VerifyResult, error)
}

// Toggle holds the fields every descriptor shares
type Toggle struct {
	EnabledFlag *bool `yaml:"enabled"`
	VerifyFlag  *bool `yaml:"verify"`
}

// Enabled reports whether the module should run
func (t Toggle) Enabled() bool {
	return t.EnabledFlag != nil && *t.EnabledFlag
}

// VerifyEnabled reports whether the verifier should re-check the module; defaults to true
func (t Toggle) VerifyEnabled() bool {
	return t.VerifyFlag == nil || *t.VerifyFlag
}

func (t Toggle) validate() error {
	if t.EnabledFlag == nil {
		return common.ConfigError("descriptor is missing the required \"enabled\" field")
	}
	return nil
}

// Document is a descriptor waiting to be decoded by its module
type Document struct {
	Module  string
	Source  string // descriptor file, or "inline"
	BaseDir string // directory relative paths are resolved against
	raw     []byte
}

// NewDocument wraps raw JSON or YAML descriptor bytes
func NewDocument(module, source, baseDir string, raw []byte) *Document {
	return &Document{Module: module, Source: source, BaseDir: baseDir, raw: raw}
}

// Decode strictly decodes the descriptor into out: unknown fields are errors
func (d *Document) Decode(out interface{}) error {
	if err := decodeStrict(d.raw, out); err != nil {
		return common.ConfigError("%s (%s): %v", common.ErrFailedToParseDescriptor, d.Source, err).In(d.Module)
	}
	return nil
}

// decodeStrict decodes a JSON or YAML document into out; unknown fields are errors.
// Valid JSON is re-emitted as YAML first: the YAML scanner rejects JSON
// escapes like \/. Anything else, YAML flow style included, goes to yaml.v3.
func decodeStrict(data []byte, out interface{}) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		converted, err := jsonToYAML(trimmed)
		if err != nil {
			return err
		}
		data = converted
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// jsonToYAML rewrites one JSON value as a YAML document, keeping key order
func jsonToYAML(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	node, err := jsonNode(dec)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid JSON: trailing data after the top-level value")
	}
	return yaml.Marshal(node)
}

func jsonNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if t == '{' {
			n.Kind, n.Tag = yaml.MappingNode, "!!map"
		}
		for dec.More() {
			if n.Kind == yaml.MappingNode {
				key, err := dec.Token()
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, jsonString(key.(string)))
			}
			child, err := jsonNode(dec)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return n, nil
	case string:
		return jsonString(t), nil
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(t.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}, nil
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
}

func jsonString(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
}

// Factory decodes and validates a descriptor into a ready module
type Factory func(doc *Document) (Module, error)

var registry = map[string]Factory{}

// Register makes a module available to plans under name
func Register(name string, factory Factory) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("patch module %q registered twice", name))
	}
	registry[name] = factory
}

// Names lists the registered module names
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewModule builds a module from its descriptor
func NewModule(doc *Document) (Module, error) {
	factory, ok := registry[doc.Module]
	if !ok {
		return nil, common.ConfigError("%s: %q (known: %v)", common.ErrUnknownModule, doc.Module, Names())
	}
	m, err := factory(doc)
	if err != nil {
		if pe, ok := common.AsPatchError(err); ok {
			return nil, pe.In(doc.Module)
		}
		return nil, common.ConfigError("%s", err.Error()).In(doc.Module)
	}
	return m, nil
}

// decodeDescriptor decodes doc into desc and checks the shared fields
func decodeDescriptor(doc *Document, desc interface{ validate() error }) error {
	if err := doc.Decode(desc); err != nil {
		return err
	}
	return desc.validate()
}
