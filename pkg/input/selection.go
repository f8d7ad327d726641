package input

import (
	"strings"

	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/filter"
)

// ParseSelection reads the chapter filter fields. Each line is one accepted
// value. A blank field places no constraint; a blank line among others
// selects chapters without a value (only volumes and chapter numbers can be
// searched that way).
func ParseSelection(fields map[Field]string) data.Selection {
	var sel data.Selection
	sel.MangaIDs = stringSet(fields[Manga])
	sel.Groups = stringSet(fields[Groups])
	sel.Uploaders = stringSet(fields[Uploader])
	sel.Languages = stringSet(fields[Language])
	sel.Volumes = nullableSet(fields[Volume])
	if numbers := nullableSet(fields[Chapter]); numbers != nil {
		sel.Numbers = filter.Compile(numbers)
	}
	return sel
}

func nullableSet(text string) []*string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []*string
	null := false
	for _, line := range Lines(text) {
		v := strings.TrimSpace(line)
		if v == "" {
			if !null {
				out = append(out, nil)
				null = true
			}
			continue
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, data.Ptr(v))
		}
	}
	return out
}

func stringSet(text string) []string {
	var out []string
	for _, v := range nullableSet(text) {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}
