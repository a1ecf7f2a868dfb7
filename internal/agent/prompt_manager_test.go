package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptManager_Preamble(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"identity.md":  "Identity Content",
		"directive.md": "Directive Content",
		"rules.md":     "Rules Content",
		"extra.md":     "Extra Content",
		"notes.txt":    "Ignored Content",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644))
	}

	prompt, err := NewPromptManager(tempDir).Preamble()
	require.NoError(t, err)

	for _, part := range []string{"Identity Content", "Directive Content", "Rules Content", "Extra Content"} {
		assert.Contains(t, prompt, part)
	}
	assert.NotContains(t, prompt, "Ignored Content")

	assert.Less(t, strings.Index(prompt, "Identity Content"), strings.Index(prompt, "Directive Content"), "identity before directive")
	assert.Less(t, strings.Index(prompt, "Directive Content"), strings.Index(prompt, "Rules Content"), "directive before rules")
	assert.Less(t, strings.Index(prompt, "Rules Content"), strings.Index(prompt, "Extra Content"), "known files before the rest")
}

func TestPromptManager_MissingDirectory(t *testing.T) {
	prompt, err := NewPromptManager(filepath.Join(t.TempDir(), "absent")).Preamble()
	require.NoError(t, err)
	assert.Empty(t, prompt)

	var pm *PromptManager
	prompt, err = pm.Preamble()
	require.NoError(t, err)
	assert.Empty(t, prompt)
}

func TestSeedText(t *testing.T) {
	assert.Equal(t, "Open example.com (Browser is ready to use.)", SeedText("", "Open example.com"))
	assert.Equal(t, "Be careful.\n\nOpen example.com (Browser is ready to use.)", SeedText("Be careful.", "Open example.com"))
}
