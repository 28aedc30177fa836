package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lherron/curio/internal/domain"
)

// policyFile is the YAML shape for per-deployment policy overrides:
//
//	types:
//	  citation:
//	    fields:
//	      notes: {strategy: concat, delimiter: " | "}
//	    relations:
//	      keywords: skip
type policyFile struct {
	Types map[string]typeOverride `yaml:"types"`
}

type typeOverride struct {
	Fields    map[string]domain.Policy `yaml:"fields"`
	Relations map[string]string        `yaml:"relations"`
}

// LoadPolicyFile applies field-policy and relation-action overrides from a
// YAML file onto already-registered types. Unknown types, fields, relations,
// or strategies are configuration errors.
func (r *Registry) LoadPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	for typeName, override := range file.Types {
		t, ok := r.types[typeName]
		if !ok {
			return fmt.Errorf("policy file %s: unknown record type %q", path, typeName)
		}

		for field, policy := range override.Fields {
			if !t.HasField(field) {
				return fmt.Errorf("policy file %s: type %q has no field %q", path, typeName, field)
			}
			if err := domain.ValidateStrategy(policy.Strategy); err != nil {
				return fmt.Errorf("policy file %s: type %q field %q: %w", path, typeName, field, err)
			}
			t.Policies[field] = policy
		}

		for relName, action := range override.Relations {
			if action != "skip" && action != "default" {
				return fmt.Errorf("policy file %s: relation action must be \"skip\" or \"default\", got %q", path, action)
			}
			found := false
			for i := range t.Relations {
				if t.Relations[i].Name == relName {
					if action == "skip" {
						t.Relations[i].Action = "skip"
					} else {
						t.Relations[i].Action = ""
					}
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("policy file %s: type %q has no relation %q", path, typeName, relName)
			}
		}
	}

	return nil
}
