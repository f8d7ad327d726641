package input

import (
	"strings"

	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/filter"
)

// ParseEdits applies edit text to copies of records. Per line, "" keeps the
// current value, whitespace clears it and anything else replaces it.
//
// conditionals hold "value:condition" lines. They run after the positional
// edits and apply value to every record whose original chapter number
// matches condition.
func ParseEdits(records []data.Chapter, fields, conditionals map[Field]string) []data.Chapter {
	n := len(records)
	out := make([]data.Chapter, n)
	for i, r := range records {
		out[i] = r.Clone()
	}

	for _, field := range EditFields {
		text, ok := fields[field]
		if !ok {
			continue
		}
		lines := Lines(text)
		if len(lines) == 1 {
			for i := range out {
				setField(&out[i], field, lines[0])
			}
			continue
		}
		for i := 0; i < n && i < len(lines); i++ {
			setField(&out[i], field, lines[i])
		}
	}

	for _, field := range EditFields {
		for _, line := range Lines(conditionals[field]) {
			value, cond, ok := filter.ParseCondition(line)
			if !ok {
				continue
			}
			raw := " "
			if value != nil {
				raw = *value
			}
			for i := range out {
				if cond.Match(records[i].Number) {
					setField(&out[i], field, raw)
				}
			}
		}
	}
	return out
}

func setField(c *data.Chapter, field Field, line string) {
	if line == "" {
		return
	}
	value := nullable(strings.TrimSpace(line))

	switch field {
	case Manga:
		if value != nil {
			c.MangaID = *value
		}
	case Uploader:
		if value != nil {
			c.UploaderID = *value
		}
	case Groups:
		c.Groups = splitList(data.Value(value))
	case Volume:
		c.Volume = value
	case Chapter:
		c.Number = value
	case Title:
		c.Title = value
	case Language:
		c.Language = value
	case ExternalURL:
		c.ExternalURL = value
	}
}

func splitList(text string) []string {
	out := []string{}
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ReverseFill renders records as edit text, one line per record. Null
// values become a single space so that feeding the text back into
// ParseEdits reproduces the records.
func ReverseFill(records []data.Chapter, fields []Field) map[Field]string {
	out := make(map[Field]string, len(fields))
	for _, field := range fields {
		lines := make([]string, len(records))
		for i, r := range records {
			lines[i] = render(r, field)
		}
		out[field] = strings.Join(lines, "\n")
	}
	return out
}

func render(c data.Chapter, field Field) string {
	var value *string
	switch field {
	case Manga:
		value = nullable(c.MangaID)
	case Uploader:
		value = nullable(c.UploaderID)
	case Groups:
		value = nullable(strings.Join(c.Groups, ","))
	case Volume:
		value = c.Volume
	case Chapter:
		value = c.Number
	case Title:
		value = c.Title
	case Language:
		value = c.Language
	case ExternalURL:
		value = c.ExternalURL
	}
	if value == nil {
		return " "
	}
	return *value
}
