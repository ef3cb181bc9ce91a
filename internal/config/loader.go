// Package config implements the Config Loader: it reads a YAML environment
// description, applies a minimal templating pass, rejects duplicate keys,
// switches on the declared schema version, applies ship defaults, and
// produces a validated internal/model.Environment. It does not resolve
// dependencies or compose container environments — that is the resolver's
// and discovery package's job.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
)

// MaxSupportedSchema is the highest __maestro.schema version this loader
// understands.
const MaxSupportedSchema = 1

// Load reads and parses the environment description at path and returns a
// validated Environment. Use "-" to read from stdin.
func Load(path string) (*model.Environment, error) {
	var data []byte
	var baseDir string
	var err error

	if path == "-" {
		data, err = readAll(os.Stdin)
		baseDir, _ = os.Getwd()
	} else {
		data, err = os.ReadFile(path)
		baseDir = filepath.Dir(path)
	}
	if err != nil {
		return nil, &errs.ConfigError{Cause: fmt.Errorf("reading %s: %w", path, err)}
	}

	rendered, err := renderTemplate(path, data)
	if err != nil {
		return nil, &errs.ConfigError{Cause: err}
	}

	if err := rejectDuplicateKeys(rendered); err != nil {
		return nil, &errs.ConfigError{Cause: err}
	}

	var doc rawDoc
	if err := yaml.Unmarshal(rendered, &doc); err != nil {
		return nil, &errs.ConfigError{Cause: fmt.Errorf("parsing yaml: %w", err)}
	}

	schema := 1
	if doc.Maestro != nil && doc.Maestro.Schema != 0 {
		schema = doc.Maestro.Schema
	}
	if schema > MaxSupportedSchema {
		return nil, &errs.SchemaVersionError{Got: schema, Max: MaxSupportedSchema}
	}

	env, err := convert(&doc, schema, baseDir)
	if err != nil {
		return nil, err
	}
	if err := validate(env); err != nil {
		return nil, err
	}
	return env, nil
}

// renderTemplate applies a minimal {{ env "VAR" }} substitution pass ahead
// of YAML parsing, using text/template with the filename as the template
// name so parse errors point back at the source file.
func renderTemplate(name string, data []byte) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"env": os.Getenv,
	}).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("templating %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(f)
	return buf.Bytes(), err
}

// rejectDuplicateKeys walks the document's mapping nodes and fails if any
// mapping repeats a key, matching the original loader's custom YAML
// constructor.
func rejectDuplicateKeys(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}
	return walkForDuplicates(&doc)
}

func walkForDuplicates(n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		seen := make(map[string]bool, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if seen[key] {
				return fmt.Errorf("duplicate key %q at line %d", key, n.Content[i].Line)
			}
			seen[key] = true
		}
	}
	for _, c := range n.Content {
		if err := walkForDuplicates(c); err != nil {
			return err
		}
	}
	return nil
}
