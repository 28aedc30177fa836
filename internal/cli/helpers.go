package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/registry"
)

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	// For now, just return the error. We'll enhance this with proper exit codes later
	return err
}

// parseFieldArgs parses repeated key=value flags into a field map.
func parseFieldArgs(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q (expected key=value)", pair)
		}
		fields[key] = value
	}
	return fields, nil
}

// printRecord writes one record as markdown-style front matter, fields in
// declaration order.
func printRecord(w io.Writer, t *registry.Type, rec *domain.Record) {
	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "type: %s\n", rec.Type)
	fmt.Fprintf(w, "id: %s\n", rec.ID)
	fmt.Fprintf(w, "uuid: %s\n", rec.UUID)
	for _, field := range t.Fields {
		v := rec.Fields[field]
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if strings.Contains(s, "\n") {
			fmt.Fprintf(w, "%s: |\n", field)
			for _, line := range strings.Split(s, "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", field, s)
	}
	fmt.Fprintf(w, "created_at: %s\n", rec.CreatedAt)
	fmt.Fprintf(w, "updated_at: %s\n", rec.UpdatedAt)
	fmt.Fprintln(w, "---")
}

// recordText renders a record's fields as one field per line, for diffing.
func recordText(t *registry.Type, rec *domain.Record) string {
	var b strings.Builder
	for _, field := range t.Fields {
		v := rec.Fields[field]
		if v == nil {
			fmt.Fprintf(&b, "%s: ~\n", field)
			continue
		}
		fmt.Fprintf(&b, "%s: %v\n", field, v)
	}
	return b.String()
}

// sortedKeys returns the map's keys in lexical order for stable output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
