package grounding

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vigil/internal/ir"
)

// tableFile is the on-disk grounding table:
//
//	entries:
//	  - name: MAPK1
//	    db_refs: {HGNC: "6871"}
//	    synonyms: [ERK2]
type tableFile struct {
	Entries []tableEntry `yaml:"entries"`
}

type tableEntry struct {
	Name     string            `yaml:"name"`
	DBRefs   map[string]string `yaml:"db_refs"`
	Synonyms []string          `yaml:"synonyms"`
}

// LoadTable reads a YAML grounding table. Synonyms resolve to the entry's
// canonical name and refs.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load grounding table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses the YAML grounding table format.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse grounding table: %w", err)
	}

	t := &Table{entries: make(map[string]ir.Entity)}
	for i, e := range f.Entries {
		if e.Name == "" {
			return nil, fmt.Errorf("parse grounding table: entry %d: name is required", i)
		}
		if len(e.DBRefs) == 0 {
			return nil, fmt.Errorf("parse grounding table: entry %q: db_refs is required", e.Name)
		}
		ent := ir.Entity{Name: e.Name, DBRefs: e.DBRefs}
		t.add(e.Name, ent)
		for _, syn := range e.Synonyms {
			t.add(syn, ent)
		}
	}
	return t, nil
}
