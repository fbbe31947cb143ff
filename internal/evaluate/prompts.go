package evaluate

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/evidence-cli/internal/config"
)

//go:embed prompts.yaml
var defaultPrompts []byte

//go:embed guidelines.txt
var defaultGuidelines string

const noneDetected = "None detected"

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"list": func(items []string) string {
		if len(items) == 0 {
			return noneDetected
		}
		return strings.Join(items, ", ")
	},
}

// promptFile mirrors prompts.yaml.
type promptFile struct {
	Prompts struct {
		System          string `yaml:"system"`
		Detailed        string `yaml:"detailed"`
		Concise         string `yaml:"concise"`
		SynthesisSystem string `yaml:"synthesis_system"`
		Synthesis       string `yaml:"synthesis"`
	} `yaml:"prompts"`
}

// Prompts holds the parsed prompt templates and the evidence guidelines.
type Prompts struct {
	System          string
	SynthesisSystem string
	Guidelines      string

	detailed  *template.Template
	concise   *template.Template
	synthesis *template.Template
}

// DocumentData is the template input for detailed and concise prompts.
type DocumentData struct {
	Guidelines string
	Name       string
	Title      string
	Authors    []string
	Year       int
	DOIs       []string
	URLs       []string
	Content    string
	Truncated  bool
}

// SynthesisData is the template input for the synthesis prompt.
type SynthesisData struct {
	Guidelines  string
	DOIs        []string
	Evaluations []NamedEvaluation
}

// NamedEvaluation is one concise evaluation fed to synthesis.
type NamedEvaluation struct {
	Name string
	Text string
}

// LoadPrompts reads prompt templates and guidelines from the configured
// paths, falling back to the embedded defaults for empty paths.
func LoadPrompts(cfg config.PromptsConfig) (*Prompts, error) {
	data := defaultPrompts
	if cfg.Path != "" {
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "evaluate: read prompts %s", cfg.Path)
		}
		data = b
	}

	guidelines := defaultGuidelines
	if cfg.GuidelinesPath != "" {
		b, err := os.ReadFile(cfg.GuidelinesPath)
		if err != nil {
			return nil, eris.Wrapf(err, "evaluate: read guidelines %s", cfg.GuidelinesPath)
		}
		guidelines = string(b)
	}

	return ParsePrompts(data, guidelines)
}

// ParsePrompts parses a prompts.yaml document.
func ParsePrompts(data []byte, guidelines string) (*Prompts, error) {
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "evaluate: parse prompts")
	}

	p := &Prompts{
		System:          strings.TrimSpace(f.Prompts.System),
		SynthesisSystem: strings.TrimSpace(f.Prompts.SynthesisSystem),
		Guidelines:      strings.TrimSpace(guidelines),
	}

	var err error
	if p.detailed, err = parseTemplate("detailed", f.Prompts.Detailed); err != nil {
		return nil, err
	}
	if p.concise, err = parseTemplate("concise", f.Prompts.Concise); err != nil {
		return nil, err
	}
	if p.synthesis, err = parseTemplate("synthesis", f.Prompts.Synthesis); err != nil {
		return nil, err
	}
	return p, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, eris.Errorf("evaluate: prompt %q is empty", name)
	}
	t, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, eris.Wrapf(err, "evaluate: parse prompt %q", name)
	}
	return t, nil
}

// RenderDocument renders the detailed or concise prompt.
func (p *Prompts) RenderDocument(detailed bool, data DocumentData) (string, error) {
	data.Guidelines = p.Guidelines
	t := p.concise
	if detailed {
		t = p.detailed
	}
	return execute(t, data)
}

// RenderSynthesis renders the synthesis prompt.
func (p *Prompts) RenderSynthesis(data SynthesisData) (string, error) {
	data.Guidelines = p.Guidelines
	return execute(p.synthesis, data)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "evaluate: render prompt %q", t.Name())
	}
	return buf.String(), nil
}
