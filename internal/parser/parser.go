// Package parser extracts frontmatter and tags from Markdown content and
// edits single frontmatter fields in place.
package parser

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Frontmatter marker that gates a note behind the vault password.
const (
	ProtectedKey   = "protected"
	ProtectedValue = "encrypted"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// ErrInvalidFrontmatter is returned when a frontmatter block exists but is
// not a YAML mapping, so it cannot be edited safely.
var ErrInvalidFrontmatter = errors.New("parser: frontmatter is not a YAML mapping")

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, and tags from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// StringField returns the frontmatter value for key when it is a string.
func (r *Result) StringField(key string) string {
	if r.Frontmatter == nil {
		return ""
	}
	s, _ := r.Frontmatter[key].(string)
	return s
}

// Protected reports whether the note carries the protection marker.
func (r *Result) Protected() bool {
	return r.StringField(ProtectedKey) == ProtectedValue
}

// locate finds the YAML block between the leading --- delimiters. rest is
// everything after the closing delimiter, starting with its line break.
func locate(data []byte) (block, rest []byte, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, data, false
	}
	after := trimmed[len(delim):]
	idx := bytes.Index(after, []byte("\n"+delim))
	if idx < 0 {
		return nil, data, false
	}
	return after[:idx], after[idx+1+len(delim):], true
}

// splitFrontmatter separates YAML frontmatter from the Markdown body. A
// missing or invalid block leaves the whole content as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	block, rest, ok := locate(data)
	if !ok {
		return nil, string(data)
	}
	var fm map[string]interface{}
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, string(data)
	}
	return fm, strings.TrimLeft(string(rest), "\n\r")
}

// SetField sets a top-level frontmatter key to value, creating the
// frontmatter block if the note has none. Other keys, their order, and
// the body are preserved.
func SetField(data []byte, key, value string) ([]byte, error) {
	return editFrontmatter(data, func(m *yaml.Node) {
		for i := 0; i+1 < len(m.Content); i += 2 {
			if m.Content[i].Value == key {
				m.Content[i+1] = scalar(value)
				return
			}
		}
		m.Content = append(m.Content, scalar(key), scalar(value))
	})
}

// RemoveField deletes a top-level frontmatter key. When no keys remain the
// frontmatter block is dropped entirely.
func RemoveField(data []byte, key string) ([]byte, error) {
	if _, _, ok := locate(data); !ok {
		return data, nil
	}
	return editFrontmatter(data, func(m *yaml.Node) {
		for i := 0; i+1 < len(m.Content); i += 2 {
			if m.Content[i].Value == key {
				m.Content = append(m.Content[:i], m.Content[i+2:]...)
				return
			}
		}
	})
}

func editFrontmatter(data []byte, edit func(mapping *yaml.Node)) ([]byte, error) {
	block, rest, ok := locate(data)
	if !ok {
		rest = append([]byte("\n"), data...)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, ErrInvalidFrontmatter
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, ErrInvalidFrontmatter
	}
	mapping := doc.Content[0]
	edit(mapping)

	if len(mapping.Content) == 0 {
		return bytes.TrimLeft(rest, "\n\r"), nil
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString(delim)
	buf.Write(rest)
	return buf.Bytes(), nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string

	if fm != nil {
		if items, ok := fm["tags"].([]interface{}); ok {
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					continue
				}
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				if _, dup := seen[s]; !dup {
					seen[s] = struct{}{}
					out = append(out, s)
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if s, ok := fm["title"].(string); ok && s != "" {
			return s
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
