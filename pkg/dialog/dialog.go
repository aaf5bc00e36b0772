package dialog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Arjun-57561/Veena/pkg/constants"
	"github.com/Arjun-57561/Veena/pkg/models"
)

// record is the on-disk node shape. veena_prompt is the legacy name of prompt_template.
type record struct {
	ID             string            `json:"id" yaml:"id"`
	Title          string            `json:"title" yaml:"title"`
	PromptTemplate map[string]string `json:"prompt_template" yaml:"prompt_template"`
	VeenaPrompt    map[string]string `json:"veena_prompt" yaml:"veena_prompt"`
}

// Load reads a Dialog Source from a .json, .yaml or .yml file.
func Load(path string) ([]models.DialogNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dialog source: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

func ParseJSON(data []byte) ([]models.DialogNode, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode dialog json: %w", err)
	}
	return toNodes(records)
}

func ParseYAML(data []byte) ([]models.DialogNode, error) {
	var records []record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode dialog yaml: %w", err)
	}
	return toNodes(records)
}

func toNodes(records []record) ([]models.DialogNode, error) {
	nodes := make([]models.DialogNode, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("dialog node %d has no id", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate dialog node id %q", r.ID)
		}
		seen[r.ID] = true

		prompts := r.PromptTemplate
		if len(prompts) == 0 {
			prompts = r.VeenaPrompt
		}
		copied := make(map[string]string, len(prompts))
		for locale, p := range prompts {
			copied[locale] = p
		}
		nodes = append(nodes, models.DialogNode{ID: r.ID, Title: r.Title, Prompts: copied})
	}
	return nodes, nil
}

// Resolve substitutes the name placeholder of template.
func Resolve(template, name string) string {
	out := strings.Replace(template, constants.PolicyHolderPlaceholder, name, 1)
	return strings.Replace(out, constants.NamePlaceholder, name, 1)
}

// ResolveNode resolves node's prompt for locale with the customer's display name.
func ResolveNode(node models.DialogNode, locale string, customer models.CustomerData, fallbackName string) string {
	return Resolve(node.Prompt(locale), customer.DisplayName(fallbackName))
}
