package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvVarSpec is a parsed config value.
type EnvVarSpec struct {
	VarName      string
	HasDefault   bool
	DefaultValue string
	IsLiteral    bool
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar parses a value that may reference an environment variable.
//
// Supported formats:
//   - ${VAR}         required variable
//   - ${VAR:default} optional variable with default
//   - anything else  literal
func ParseEnvVar(value string) *EnvVarSpec {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return &EnvVarSpec{IsLiteral: true, LiteralValue: value}
	}
	return &EnvVarSpec{
		VarName:      matches[1],
		HasDefault:   matches[2] != "",
		DefaultValue: strings.TrimPrefix(matches[2], ":"),
	}
}

// Resolve returns the literal, the variable's value, or its default. A
// required variable that is not set is an error.
func (s *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if v, ok := lookup(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("environment variable %s is not set", s.VarName)
}

// ExpandEnv resolves environment references in every string of a decoded
// YAML document, descending into maps and lists.
func ExpandEnv(value any) (any, error) {
	return expand(value, os.LookupEnv, "")
}

func expand(value any, lookup func(string) (string, bool), path string) (any, error) {
	switch v := value.(type) {
	case string:
		resolved, err := ParseEnvVar(v).Resolve(lookup)
		if err != nil && path != "" {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return resolved, err
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := expand(item, lookup, join(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := expand(item, lookup, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
