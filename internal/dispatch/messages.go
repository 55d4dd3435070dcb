package dispatch

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessages []byte

// MessageData is what message templates can reference.
type MessageData struct {
	Phone       string
	SurveyURL   string
	FeedbackURL string
}

type messageFile struct {
	Regular      string `yaml:"regular"`
	Weekly       string `yaml:"weekly"`
	ParseFailure string `yaml:"parse_failure"`
}

// Messages holds the compiled SMS copy.
type Messages struct {
	regular      *template.Template
	weekly       *template.Template
	parseFailure *template.Template
}

// DefaultMessages returns the built-in copy.
func DefaultMessages() *Messages {
	m, err := parseMessages(defaultMessages, nil)
	if err != nil {
		panic(fmt.Sprintf("built-in messages: %v", err))
	}
	return m
}

// LoadMessages reads copy from path. Keys missing from the file keep their
// built-in value; an empty path yields the defaults.
func LoadMessages(path string) (*Messages, error) {
	if path == "" {
		return DefaultMessages(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	return parseMessages(defaultMessages, raw)
}

func parseMessages(base, overlay []byte) (*Messages, error) {
	var f messageFile
	if err := yaml.Unmarshal(base, &f); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	if overlay != nil {
		// yaml leaves fields absent from overlay untouched
		if err := yaml.Unmarshal(overlay, &f); err != nil {
			return nil, fmt.Errorf("parse messages: %w", err)
		}
	}
	var m Messages
	var err error
	if m.regular, err = template.New("regular").Parse(f.Regular); err != nil {
		return nil, err
	}
	if m.weekly, err = template.New("weekly").Parse(f.Weekly); err != nil {
		return nil, err
	}
	if m.parseFailure, err = template.New("parse_failure").Parse(f.ParseFailure); err != nil {
		return nil, err
	}
	return &m, nil
}

// Render produces the dispatch message for kind.
func (m *Messages) Render(kind Kind, data MessageData) (string, error) {
	t := m.regular
	if kind == KindWeekly {
		t = m.weekly
	}
	return execute(t, data)
}

// ParseFailure is the reply sent when an SMS response cannot be parsed.
func (m *Messages) ParseFailure(phone string) (string, error) {
	return execute(m.parseFailure, MessageData{Phone: phone})
}

func execute(t *template.Template, data MessageData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
