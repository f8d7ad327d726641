package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kerbaras/mdbulk/pkg/input"
	"github.com/spf13/cobra"
)

func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func flagName(prefix string, field input.Field) string {
	return prefix + strings.ReplaceAll(string(field), "_", "-")
}

// fieldFlags registers one repeatable flag per field. Every occurrence of a
// flag is one line of the field.
type fieldFlags struct {
	prefix string
	fields []input.Field
	values map[input.Field]*[]string
}

func addFieldFlags(cmd *cobra.Command, prefix string, fields []input.Field, usage string) *fieldFlags {
	f := &fieldFlags{prefix: prefix, fields: fields, values: make(map[input.Field]*[]string)}
	for _, field := range fields {
		var lines []string
		f.values[field] = &lines
		cmd.Flags().StringArrayVar(&lines, flagName(prefix, field), nil, fmt.Sprintf(usage, strings.ReplaceAll(string(field), "_", " ")))
	}
	return f
}

// Values returns the text of every field that was given. A line of the form
// "@path" is replaced by the contents of the file.
func (f *fieldFlags) Values() (map[input.Field]string, error) {
	out := make(map[input.Field]string)
	for _, field := range f.fields {
		lines := *f.values[field]
		if len(lines) == 0 {
			continue
		}
		text, err := expandLines(lines)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flagName(f.prefix, field), err)
		}
		out[field] = text
	}
	return out, nil
}

func expandLines(lines []string) (string, error) {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if path, ok := strings.CutPrefix(line, "@"); ok && path != "" {
			content, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", path, err)
			}
			parts = append(parts, strings.TrimSuffix(strings.ReplaceAll(string(content), "\r", ""), "\n"))
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n"), nil
}

// parseSets groups "field=value:condition" entries into conditional lines
// per field.
func parseSets(sets []string) (map[input.Field]string, error) {
	grouped := make(map[input.Field][]string)
	for _, set := range sets {
		name, rule, ok := strings.Cut(set, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected field=value:condition", set)
		}
		field, known := input.ParseField(name)
		if !known {
			return nil, fmt.Errorf("--set %q: unknown field %q", set, name)
		}
		if !slices.Contains(input.EditFields, field) {
			return nil, fmt.Errorf("--set %q: %s cannot be edited", set, field)
		}
		if !strings.Contains(rule, ":") {
			return nil, fmt.Errorf("--set %q: missing :condition", set)
		}
		grouped[field] = append(grouped[field], rule)
	}

	out := make(map[input.Field]string, len(grouped))
	for field, rules := range grouped {
		out[field] = strings.Join(rules, "\n")
	}
	return out, nil
}
