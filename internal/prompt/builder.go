// Package prompt renders per-language horoscope prompts from profile data.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/profile"
	"github.com/Proton-105/horoscope-bot/internal/provider"
)

//go:embed templates.yaml
var defaultTemplates []byte

type templateSpec struct {
	System      string `yaml:"system"`
	User        string `yaml:"user"`
	Unspecified string `yaml:"unspecified"`
}

type compiled struct {
	system      string
	user        *template.Template
	unspecified string
}

// Builder turns a profile into a provider prompt.
type Builder struct {
	templates   map[domain.Language]compiled
	fallback    domain.Language
	maxTokens   int
	temperature float32
}

// Data is the template context.
type Data struct {
	Name       string
	BirthDate  string
	Zodiac     string
	Gender     string
	Profession string
	Hobbies    string
	Date       string
}

// NewBuilder parses the embedded templates.
func NewBuilder(maxTokens int, temperature float32) (*Builder, error) {
	return Parse(defaultTemplates, maxTokens, temperature)
}

// Parse compiles templates from a YAML document keyed by language code.
func Parse(raw []byte, maxTokens int, temperature float32) (*Builder, error) {
	var specs map[string]templateSpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}

	b := &Builder{
		templates:   make(map[domain.Language]compiled, len(specs)),
		fallback:    domain.LanguageEN,
		maxTokens:   maxTokens,
		temperature: temperature,
	}

	for code, spec := range specs {
		lang := domain.Language(strings.ToUpper(code))
		if lang.Code() == "" {
			return nil, fmt.Errorf("prompt templates: unsupported language %q", code)
		}

		tmpl, err := template.New(code).Option("missingkey=error").Parse(spec.User)
		if err != nil {
			return nil, fmt.Errorf("prompt template %s: %w", code, err)
		}

		b.templates[lang] = compiled{system: spec.System, user: tmpl, unspecified: spec.Unspecified}
	}

	if _, ok := b.templates[b.fallback]; !ok {
		return nil, fmt.Errorf("prompt templates: missing %s fallback", b.fallback)
	}

	return b, nil
}

// Build renders the prompt for p on the given day.
func (b *Builder) Build(p *domain.UserProfile, day time.Time) (provider.Prompt, error) {
	if p == nil {
		return provider.Prompt{}, fmt.Errorf("build prompt: nil profile")
	}

	lang := p.Language
	tmpl, ok := b.templates[lang]
	if !ok {
		lang = b.fallback
		tmpl = b.templates[lang]
	}

	data := Data{
		Name:       p.Name,
		BirthDate:  profile.FormatDate(p.BirthDate),
		Zodiac:     profile.ZodiacName(profile.ZodiacOf(p.BirthDate), lang),
		Gender:     profile.GenderLabel(p.Gender, lang),
		Profession: orDefault(p.Profession, tmpl.unspecified),
		Hobbies:    orDefault(p.Hobbies, tmpl.unspecified),
		Date:       day.Format(domain.DateLayout),
	}

	var sb strings.Builder
	if err := tmpl.user.Execute(&sb, data); err != nil {
		return provider.Prompt{}, fmt.Errorf("render prompt: %w", err)
	}

	return provider.Prompt{
		System:      tmpl.system,
		User:        strings.TrimSpace(sb.String()),
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
	}, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
