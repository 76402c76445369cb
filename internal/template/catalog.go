// Package template holds the per-message-type catalog: generation prompts and
// provider-approved content templates.
package template

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Template struct {
	// Prompt is the generation instruction; "{name}" is replaced with the
	// recipient's display name.
	Prompt string `yaml:"prompt"`
	// ContentSID is the provider template id. Delivery uses it only when Fixed.
	ContentSID string `yaml:"content_sid"`
	// Body renders ContentSID as plain text with {{1}}, {{2}}, ... placeholders.
	Body string `yaml:"body"`
	// Fixed means the provider template is mandatory and content edits are ignored.
	Fixed bool `yaml:"fixed"`
}

type Catalog struct {
	Types map[string]Template `yaml:"message_types"`
}

const ownerVoiceInstruction = "Important: write in the professional's own voice, never as an assistant."

func Default() *Catalog {
	return &Catalog{Types: map[string]Template{
		"follow_up": {
			Prompt: "Write a short follow-up message to {name}. Ask how the home exercise from the last session went. Two or three sentences, in your personal tone.",
		},
		"exercise_reminder": {
			Prompt: "Write a friendly reminder to {name} to complete the assigned exercise. Short and encouraging, in your personal tone.",
		},
		"check_in": {
			Prompt: "Write a general check-in message to {name}. Ask how they are feeling and what is new. Short and warm, in your personal tone.",
		},
		"session_reminder": {
			Prompt: "Write a reminder to {name} about the next session. Include the session time and mention a topic or exercise you discussed.",
			Body:   "Hello {{1}}, this is a reminder of your session with {{2}} on {{3}} at {{4}}.",
		},
	}}
}

// Load reads a YAML catalog and overlays it on the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}

	var file Catalog
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse template catalog %s: %w", path, err)
	}
	for name, tpl := range file.Types {
		if tpl.Fixed && tpl.ContentSID == "" {
			return nil, fmt.Errorf("template catalog: %s is fixed but has no content_sid", name)
		}
		c.Types[name] = tpl
	}
	return c, nil
}

func (c *Catalog) Lookup(messageType string) (Template, bool) {
	t, ok := c.Types[messageType]
	return t, ok
}

// Prompt builds the generation prompt for a message type, falling back to a
// generic one for unknown types.
func (c *Catalog) Prompt(messageType, recipientName string, extra map[string]string) string {
	base := "Write a message to {name}."
	if t, ok := c.Types[messageType]; ok && t.Prompt != "" {
		base = t.Prompt
	}

	var b strings.Builder
	b.WriteString(strings.ReplaceAll(base, "{name}", recipientName))
	if len(extra) > 0 {
		b.WriteString("\n\nAdditional context:")
		for _, k := range sortedKeys(extra) {
			fmt.Fprintf(&b, "\n- %s: %s", k, extra[k])
		}
	}
	b.WriteString("\n\n")
	b.WriteString(ownerVoiceInstruction)
	return b.String()
}

// Render implements channel.Renderer. Unknown templates degrade to the
// variable values joined in positional order.
func (c *Catalog) Render(contentSID string, vars map[string]string) string {
	for _, t := range c.Types {
		if t.ContentSID != "" && t.ContentSID == contentSID && t.Body != "" {
			return Substitute(t.Body, vars)
		}
	}

	values := make([]string, 0, len(vars))
	for _, k := range sortedKeys(vars) {
		if v := strings.TrimSpace(vars[k]); v != "" {
			values = append(values, v)
		}
	}
	return strings.Join(values, " ")
}

// Substitute replaces {{key}} placeholders with vars[key].
func Substitute(body string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// sortedKeys orders numeric keys numerically, then the rest lexically.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}
