package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pipeflow/internal/definition"
)

const SupportedSchema = "v1"

// LoadProcesses reads a definition file, or every *.yml / *.yaml file of a
// directory in name order, into one catalog.
func LoadProcesses(path string) (*definition.Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if info.IsDir() {
		if files, err = definitionFiles(path); err != nil {
			return nil, err
		}
	}

	cat := definition.NewCatalog()
	for _, f := range files {
		doc, err := LoadProcessFile(f)
		if err != nil {
			return nil, err
		}
		if err := cat.Add(doc); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
	}
	return cat, nil
}

// LoadProcessFile parses one definition file and validates schema_version.
func LoadProcessFile(path string) (*definition.File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc definition.File
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = SupportedSchema
	}
	if doc.SchemaVersion != SupportedSchema {
		return nil, fmt.Errorf("%s: schema_version %q not supported (want %q)", path, doc.SchemaVersion, SupportedSchema)
	}
	return &doc, nil
}

func definitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
