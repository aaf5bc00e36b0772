package dialog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arjun-57561/Veena/pkg/models"
)

func TestResolve(t *testing.T) {
	assert.Equal(t, "Hello Priya", Resolve("Hello {name}", "Priya"))
	assert.Equal(t, "Am I speaking with Priya?", Resolve("Am I speaking with {policy_holder_name}?", "Priya"))
	assert.Equal(t, "No placeholder", Resolve("No placeholder", "Priya"))
}

func TestResolveNode_UsesFallbackName(t *testing.T) {
	node := models.DialogNode{ID: "1.0", Prompts: map[string]string{"en": "Hi {policy_holder_name}"}}

	assert.Equal(t, "Hi Ajay", ResolveNode(node, "en", models.CustomerData{}, "Ajay"))
	assert.Equal(t, "Hi Priya", ResolveNode(node, "hi", models.CustomerData{FullName: "Priya"}, "Ajay"))
}

func TestParseJSON_AcceptsLegacyKey(t *testing.T) {
	data := []byte(`[
		{"id": "1.0", "title": "Greeting", "veena_prompt": {"en": "Hello {policy_holder_name}"}},
		{"id": "2.0", "prompt_template": {"en": "Your premium is due", "hi": "आपका प्रीमियम देय है"}}
	]`)

	nodes, err := ParseJSON(data)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "1.0", nodes[0].ID)
	assert.Equal(t, "Greeting", nodes[0].Title)
	assert.Equal(t, "Hello {policy_holder_name}", nodes[0].Prompt("en"))
	assert.Equal(t, "आपका प्रीमियम देय है", nodes[1].Prompt("hi"))
}

func TestParseJSON_Errors(t *testing.T) {
	_, err := ParseJSON([]byte(`{"id": "x"}`))
	assert.Error(t, err)

	_, err = ParseJSON([]byte(`[{"prompt_template": {"en": "x"}}]`))
	assert.Error(t, err)

	_, err = ParseJSON([]byte(`[{"id": "a"}, {"id": "a"}]`))
	assert.Error(t, err)
}

func TestParseJSON_Empty(t *testing.T) {
	nodes, err := ParseJSON([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.yaml")
	content := `
- id: "1.0"
  prompt_template:
    en: "Hello {name}"
- id: "2.0"
  prompt_template:
    en: "Thank you"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	nodes, err := Load(path)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Hello {name}", nodes[0].Prompt("en"))
}

func TestLoad_BundledDialogTree(t *testing.T) {
	nodes, err := Load(filepath.Join("..", "..", "data", "dialog_tree.json"))
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.NotEmpty(t, n.Prompt("en"), "node %s has no english prompt", n.ID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
