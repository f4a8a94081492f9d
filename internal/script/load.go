package script

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"borrowsim/internal/source"
)

// Load reads a script file through fs and decodes it by extension.
// The returned script is normalised and its ops carry spans into fs.
func Load(fs *source.FileSet, path string) (*Script, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	id, err := fs.Load(path)
	if err != nil {
		return nil, err
	}
	file := fs.Get(id)
	s, err := decode(format, file.Content)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s.File = id
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.Normalize()
	return s, nil
}

// Decode parses data without registering it in a file set.
func Decode(format Format, name string, data []byte) (*Script, error) {
	s, err := decode(format, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	s.Normalize()
	return s, nil
}

func decode(format Format, data []byte) (*Script, error) {
	switch format {
	case FormatTOML:
		return decodeTOML(data)
	case FormatYAML:
		return decodeYAML(data)
	case FormatJSON:
		return decodeJSON(data)
	default:
		return nil, ErrUnknownFormat
	}
}

func decodeTOML(data []byte) (*Script, error) {
	var s Script
	md, err := toml.Decode(string(data), &s)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys: %v", undecoded)
	}
	// Positions are recovered from [[op]] headers; inline arrays keep op-only spans.
	if lines := tomlOpHeaders(data); len(lines) == len(s.Ops) {
		for i, line := range lines {
			s.Ops[i].Span.Line = line
			s.Ops[i].Span.Col = 1
		}
	}
	return &s, nil
}

func tomlOpHeaders(data []byte) []uint32 {
	var lines []uint32
	sc := bufio.NewScanner(bytes.NewReader(data))
	var n uint32
	for sc.Scan() {
		n++
		if strings.TrimSpace(sc.Text()) == "[[op]]" {
			lines = append(lines, n)
		}
	}
	return lines
}

func decodeYAML(data []byte) (*Script, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	var s Script
	if len(root.Content) == 0 {
		return &s, nil
	}
	doc := root.Content[0]
	if err := doc.Decode(&s); err != nil {
		return nil, err
	}
	ops := mappingValue(doc, "ops")
	if ops == nil || ops.Kind != yaml.SequenceNode || len(ops.Content) != len(s.Ops) {
		return &s, nil
	}
	for i, item := range ops.Content {
		line, errL := safecast.Conv[uint32](item.Line)
		col, errC := safecast.Conv[uint32](item.Column)
		if errL != nil || errC != nil {
			continue
		}
		s.Ops[i].Span.Line = line
		s.Ops[i].Span.Col = col
	}
	return &s, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func decodeJSON(data []byte) (*Script, error) {
	var s Script
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
