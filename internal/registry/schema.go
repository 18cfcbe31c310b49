package registry

import (
	"fmt"
	"strings"
)

// ParamSpec is the schema for one tool parameter. Types are deliberately
// small: string, number, bool. Anything richer belongs inside the tool.
type ParamSpec struct {
	Type     string   `yaml:"type"` // string, number, bool
	Required bool     `yaml:"required"`
	Enum     []string `yaml:"enum,omitempty"` // string params only
}

// checkSchema validates params against the schema: required keys present,
// no unknown keys, values of the declared type.
func checkSchema(schema map[string]ParamSpec, params map[string]interface{}) error {
	for name, spec := range schema {
		v, ok := params[name]
		if !ok {
			if spec.Required {
				return fmt.Errorf("missing required parameter %q", name)
			}
			continue
		}
		if err := checkValue(name, spec, v); err != nil {
			return err
		}
	}

	for name := range params {
		if _, ok := schema[name]; !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
	}
	return nil
}

func checkValue(name string, spec ParamSpec, v interface{}) error {
	switch spec.Type {
	case "string", "":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", name)
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return fmt.Errorf("parameter %q must be one of [%s]", name, strings.Join(spec.Enum, ", "))
		}
	case "number":
		switch v.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("parameter %q must be a number", name)
		}
	case "bool":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("parameter %q must be a bool", name)
		}
	default:
		return fmt.Errorf("parameter %q has unsupported schema type %q", name, spec.Type)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
