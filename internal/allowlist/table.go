package allowlist

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"safesignal/internal/models"
)

//go:embed allowlist.yaml
var allowlistYAML []byte

type allowlistFile struct {
	Entries []models.AllowlistEntry `yaml:"entries"`
}

// Provider supplies the crisis allowlist. The static table is the production
// implementation; tests substitute fixtures.
type Provider interface {
	Entries() []models.AllowlistEntry
}

// StaticProvider serves the embedded allowlist table.
type StaticProvider struct {
	entries []models.AllowlistEntry
}

// NewStaticProvider parses the embedded table. The table ships with the
// binary, so a parse failure is a build defect, not a runtime condition.
func NewStaticProvider() (*StaticProvider, error) {
	var file allowlistFile
	if err := yaml.Unmarshal(allowlistYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse embedded allowlist: %w", err)
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("embedded allowlist is empty")
	}
	return &StaticProvider{entries: file.Entries}, nil
}

// Entries returns a copy of the allowlist for enumeration.
func (p *StaticProvider) Entries() []models.AllowlistEntry {
	out := make([]models.AllowlistEntry, len(p.entries))
	copy(out, p.entries)
	return out
}
