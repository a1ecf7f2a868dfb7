package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PromptManager loads optional markdown preambles that are placed ahead of
// the user's instruction in the seed turn.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// preambleOrder pins the well-known files first; the rest follow by name.
var preambleOrder = map[string]int{
	"identity.md":  1,
	"directive.md": 2,
	"rules.md":     3,
	"site.md":      4,
}

// Preamble joins every *.md file in the directory. A missing directory is
// not an error and yields "".
func (pm *PromptManager) Preamble() (string, error) {
	if pm == nil || pm.Directory == "" {
		return "", nil
	}
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		oi, okI := preambleOrder[entries[i].Name()]
		oj, okJ := preambleOrder[entries[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return entries[i].Name() < entries[j].Name()
	})

	var contents []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(pm.Directory, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			contents = append(contents, s)
		}
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

// SeedText builds the text of the first user turn.
func SeedText(preamble, instruction string) string {
	if preamble == "" {
		return instruction + ReadinessNote
	}
	return preamble + "\n\n" + instruction + ReadinessNote
}
