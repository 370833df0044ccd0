package persona

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir reads every *.json profile in dir into system personas. Files
// without an "id" field are skipped with a warning, matching the lenient
// startup behavior expected of profile packs maintained by hand.
func LoadDir(dir string) ([]Persona, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading personas directory: %w", err)
	}

	var out []Persona
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			log.Printf("[persona] skipping %s: %v", path, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func loadFile(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, err
	}

	var profile struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		return Persona{}, fmt.Errorf("invalid profile JSON: %w", err)
	}
	if profile.ID == "" {
		return Persona{}, fmt.Errorf("profile missing required 'id' field")
	}

	name := profile.Name
	if name == "" {
		name = "Unknown"
	}
	role := profile.Role
	if role == "" {
		role = "Unknown"
	}

	return Persona{
		ID:       profile.ID,
		Name:     name,
		Role:     role,
		IsSystem: true,
		Profile:  json.RawMessage(data),
	}, nil
}
