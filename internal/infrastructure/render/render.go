// Package render turns a stored template and event payload into subject and body.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	json "github.com/goccy/go-json"
)

// Template is a named subject/body pair.
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Renderer holds parsed templates keyed by template id.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*parsed
}

type parsed struct {
	subject *template.Template
	body    *template.Template
}

func New() *Renderer {
	return &Renderer{templates: make(map[string]*parsed)}
}

func (r *Renderer) Register(id string, t Template) error {
	subject, err := template.New(id + ".subject").Option("missingkey=zero").Parse(t.Subject)
	if err != nil {
		return fmt.Errorf("Renderer - Register - parse subject: %w", err)
	}
	body, err := template.New(id + ".body").Option("missingkey=zero").Parse(t.Body)
	if err != nil {
		return fmt.Errorf("Renderer - Register - parse body: %w", err)
	}

	r.mu.Lock()
	r.templates[id] = &parsed{subject: subject, body: body}
	r.mu.Unlock()

	return nil
}

// LoadJSON registers every template of a {"id": {"subject": .., "body": ..}} document.
func (r *Renderer) LoadJSON(raw []byte) error {
	var set map[string]Template
	if err := json.Unmarshal(raw, &set); err != nil {
		return fmt.Errorf("Renderer - LoadJSON - json.Unmarshal: %w", err)
	}

	for id, t := range set {
		if err := r.Register(id, t); err != nil {
			return err
		}
	}

	return nil
}

// Render executes template id against the JSON payload.
func (r *Renderer) Render(templateID string, payload []byte) (subject, body string, err error) {
	r.mu.RLock()
	t, ok := r.templates[templateID]
	r.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("Renderer - Render: unknown template %q", templateID)
	}

	data := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return "", "", fmt.Errorf("Renderer - Render - json.Unmarshal: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := t.subject.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("Renderer - Render - subject: %w", err)
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := t.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("Renderer - Render - body: %w", err)
	}

	return subject, buf.String(), nil
}
