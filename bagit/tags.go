package bagit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tags is an ordered mapping of tag names to values. Names and values are
// trimmed of surrounding white space when set. Setting a name a second time
// replaces its value but keeps its original position.
//
// The zero value is ready to use.
type Tags struct {
	names  []string
	values map[string]string
}

// NewTags returns an empty tag list.
func NewTags() *Tags {
	return &Tags{values: make(map[string]string)}
}

// Set assigns value to the tag name.
func (t *Tags) Set(name, value string) {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if t.values == nil {
		t.values = make(map[string]string)
	}
	if _, ok := t.values[name]; !ok {
		t.names = append(t.names, name)
	}
	t.values[name] = value
}

// Get returns the value of the tag name.
func (t *Tags) Get(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	v, ok := t.values[name]
	return v, ok
}

// Names returns the tag names in order.
func (t *Tags) Names() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.names...)
}

// Len returns the number of distinct tags.
func (t *Tags) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Clone returns a copy of t which shares nothing with it.
func (t *Tags) Clone() *Tags {
	c := NewTags()
	if t == nil {
		return c
	}
	c.names = append(c.names, t.names...)
	for k, v := range t.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON writes the tags as a JSON object in tag order.
func (t *Tags) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(t.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of strings, keeping the key order.
func (t *Tags) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("tags: expected object, got %v", tok)
	}
	*t = Tags{values: make(map[string]string)}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		t.Set(name, value)
	}
	_, err = dec.Token()
	return err
}

// MarshalYAML writes the tags as a YAML mapping in tag order.
func (t *Tags) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range t.Names() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.values[name]},
		)
	}
	return node, nil
}

// UnmarshalYAML reads a YAML mapping, keeping key order.
func (t *Tags) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("tags: expected mapping, got line %d", node.Line)
	}
	t.names = nil
	t.values = make(map[string]string)
	for i := 0; i+1 < len(node.Content); i += 2 {
		t.Set(node.Content[i].Value, node.Content[i+1].Value)
	}
	return nil
}
