package launcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aaltosatellite/porthouse/pkg/types"
)

// ModuleValidationError names the first offending module/launch spec
// field, matching the original's ModuleValidationError.
type ModuleValidationError struct {
	Detail string
}

func (e *ModuleValidationError) Error() string { return "launch spec: " + e.Detail }

// rawParam mirrors one `params:` entry before GLOBAL:/type resolution.
type rawParam struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
	Type  string `yaml:"type,omitempty"`
}

// rawModule mirrors one `modules:` entry.
type rawModule struct {
	Name   string     `yaml:"name,omitempty"`
	Module string     `yaml:"module"`
	Prefix string     `yaml:"prefix,omitempty"`
	Params []rawParam `yaml:"params,omitempty"`
	Debug  bool       `yaml:"debug,omitempty"`
}

// rawSpec mirrors the whole launch spec file.
type rawSpec struct {
	Name      string            `yaml:"name,omitempty"`
	Prefix    string            `yaml:"prefix,omitempty"`
	Exchanges map[string]string `yaml:"exchanges,omitempty"`
	Modules   []rawModule       `yaml:"modules"`
}

// LaunchSpec is the parsed and validated launch spec.
type LaunchSpec struct {
	Name      string
	Prefix    string
	Exchanges []types.ExchangeDeclaration
	Modules   []rawModule
}

// ParseFile reads and structurally validates a launch spec file, per spec
// 4.E step 1.
func ParseFile(path string) (*LaunchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("launcher: reading %s: %w", path, err)
	}

	var raw rawSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ModuleValidationError{Detail: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	spec := &LaunchSpec{Name: raw.Name, Prefix: raw.Prefix, Modules: raw.Modules}
	for name, kind := range raw.Exchanges {
		spec.Exchanges = append(spec.Exchanges, types.ExchangeDeclaration{
			Name:       name,
			Kind:       types.ExchangeKind(kind),
			Durable:    true,
			AutoDelete: false,
		})
	}
	return spec, nil
}

func validate(raw rawSpec) error {
	for _, m := range raw.Modules {
		if m.Module == "" {
			return &ModuleValidationError{Detail: fmt.Sprintf("module specification %+v missing required field 'module'", m)}
		}
		for _, p := range m.Params {
			if p.Name == "" {
				return &ModuleValidationError{Detail: fmt.Sprintf("parameter %+v missing field 'name'", p)}
			}
		}
	}
	return nil
}
