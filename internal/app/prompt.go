package app

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/example/harness/internal/core/hook"
	"github.com/example/harness/internal/core/skill"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/templates"
)

// PromptBuilder renders the prompt an executor hands to the agent.
type PromptBuilder struct {
	work  *template.Template
	skill *template.Template
}

type workPromptData struct {
	WorkerID       string
	Issue          *primary.Issue
	Labels         []string
	Description    string
	Attempts       int
	PrimingContext string
}

type skillPromptData struct {
	Skill *skill.Descriptor
	Work  string
}

// NewPromptBuilder parses the embedded prompt templates.
func NewPromptBuilder() (*PromptBuilder, error) {
	work, err := parseTemplate("work", templates.GetWorkPrompt)
	if err != nil {
		return nil, err
	}
	skill, err := parseTemplate("skill", templates.GetSkillPrompt)
	if err != nil {
		return nil, err
	}
	return &PromptBuilder{work: work, skill: skill}, nil
}

func parseTemplate(name string, load func() (string, error)) (*template.Template, error) {
	content, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s prompt: %w", name, err)
	}
	tmpl, err := template.New(name).Funcs(templates.TemplateFuncs()).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s prompt: %w", name, err)
	}
	return tmpl, nil
}

// Build renders the work prompt for a request. Queue bookkeeping markers
// are stripped from the description and hook labels are hidden.
func (b *PromptBuilder) Build(req primary.ExecutionRequest) (string, error) {
	if req.Issue == nil {
		return "", fmt.Errorf("execution request has no issue")
	}
	var labels []string
	for _, l := range req.Issue.Labels {
		if !hook.IsHookLabel(l) {
			labels = append(labels, l)
		}
	}
	data := workPromptData{
		WorkerID:       req.WorkerID,
		Issue:          req.Issue,
		Labels:         labels,
		Description:    hook.StripMarkers(req.Issue.Description),
		Attempts:       hook.RetryCount(req.Issue.Description),
		PrimingContext: req.PrimingContext,
	}
	return render(b.work, data)
}

// BuildForSkill wraps the work prompt with a skill preamble.
func (b *PromptBuilder) BuildForSkill(sk *skill.Descriptor, req primary.ExecutionRequest) (string, error) {
	work, err := b.Build(req)
	if err != nil {
		return "", err
	}
	return render(b.skill, skillPromptData{Skill: sk, Work: work})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
