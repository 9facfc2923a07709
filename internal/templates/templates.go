// Package templates holds the embedded prompt templates handed to executors.
package templates

import (
	"embed"
	"strings"
	"text/template"
)

//go:embed prompt/*.tmpl
var promptTemplates embed.FS

// GetWorkPrompt returns the work prompt template content
func GetWorkPrompt() (string, error) {
	content, err := promptTemplates.ReadFile("prompt/work.tmpl")
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// GetSkillPrompt returns the skill invocation template content
func GetSkillPrompt() (string, error) {
	content, err := promptTemplates.ReadFile("prompt/skill.tmpl")
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// TemplateFuncs returns the function map shared by the prompt templates.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":    strings.Join,
		"indent":  indent,
		"trim":    strings.TrimSpace,
		"toUpper": strings.ToUpper,
	}
}

func indent(prefix, s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
