// Package skill parses skill descriptors: markdown files that open with a
// YAML frontmatter block.
package skill

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("skill: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block was not closed or could not be parsed.
	ErrMalformedFrontMatter = errors.New("skill: malformed frontmatter")
)

// Descriptor is a parsed skill file.
type Descriptor struct {
	Name         string
	DisplayName  string
	Description  string
	Model        string
	AllowedTools []string
	Context      string
	Body         string
}

type frontMatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Model        string   `yaml:"model"`
	AllowedTools toolList `yaml:"allowed-tools"`
	Context      string   `yaml:"context"`
}

// toolList accepts either a YAML sequence or a comma separated string.
type toolList []string

func (t *toolList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var out []string
		for _, tool := range strings.Split(value.Value, ",") {
			if tool = strings.TrimSpace(tool); tool != "" {
				out = append(out, tool)
			}
		}
		*t = out
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := value.Decode(&out); err != nil {
			return err
		}
		*t = out
		return nil
	default:
		return fmt.Errorf("allowed-tools must be a list or string, line %d", value.Line)
	}
}

// Parse extracts the frontmatter and body of a skill file. path is only
// used to derive a display name when the frontmatter has no name.
func Parse(content []byte, path string) (*Descriptor, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]

	var meta, body []byte
	if bytes.HasPrefix(rest, []byte("---\n")) {
		body = rest[4:]
	} else {
		parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
		if len(parts) < 2 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return nil, ErrMalformedFrontMatter
			}
			parts = [][]byte{bytes.TrimSuffix(rest, []byte("\n---")), nil}
		}
		meta, body = parts[0], parts[1]
	}

	var fm frontMatter
	if err := yaml.Unmarshal(meta, &fm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}

	d := &Descriptor{
		Name:         strings.TrimSpace(fm.Name),
		Description:  strings.TrimSpace(fm.Description),
		Model:        strings.TrimSpace(fm.Model),
		AllowedTools: []string(fm.AllowedTools),
		Context:      strings.TrimSpace(fm.Context),
		Body:         strings.TrimSpace(string(body)),
	}
	if d.Name == "" {
		d.Name = nameFromPath(path)
	}
	d.DisplayName = DisplayName(d.Name)
	return d, nil
}

// DisplayName turns a skill slug like "fix-flaky_tests" into "Fix Flaky Tests".
func DisplayName(name string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(name))
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// nameFromPath uses the file name, or the directory for SKILL.md layouts.
func nameFromPath(path string) string {
	if path == "" {
		return "skill"
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(base, "skill") {
		if dir := filepath.Base(filepath.Dir(path)); dir != "." && dir != string(filepath.Separator) {
			return dir
		}
	}
	return base
}
