package input

import (
	"strconv"
	"strings"

	"github.com/kerbaras/mdbulk/pkg/data"
)

// ParseUpload builds one draft per chapter. The chapter count is the larger
// of the file count and the longest field, so missing values end up null
// instead of dropping chapters.
func ParseUpload(fields map[Field]string, files []string) []data.Chapter {
	n := len(files)
	lines := make(map[Field][]string, len(fields))
	for field, text := range fields {
		lines[field] = Lines(text)
		n = max(n, len(lines[field]))
	}
	if n == 0 {
		return nil
	}

	values := make(map[Field][]*string, len(lines))
	for field, l := range lines {
		values[field] = expand(field, l, n)
	}
	at := func(field Field, i int) *string {
		if v, ok := values[field]; ok {
			return v[i]
		}
		return nil
	}

	chapters := make([]data.Chapter, n)
	for i := range chapters {
		c := data.Chapter{
			MangaID:     data.Value(at(Manga, i)),
			Groups:      []string{},
			Volume:      at(Volume, i),
			Number:      at(Chapter, i),
			Title:       at(Title, i),
			Language:    at(Language, i),
			ExternalURL: at(ExternalURL, i),
		}
		for _, slot := range GroupSlots {
			if g := at(slot, i); g != nil {
				c.Groups = append(c.Groups, *g)
			}
		}
		if i < len(files) {
			c.File = files[i]
		}
		chapters[i] = c
	}
	return chapters
}

// expand turns one field's lines into exactly n values.
func expand(field Field, lines []string, n int) []*string {
	out := make([]*string, n)
	if len(lines) == 1 {
		v := strings.TrimSpace(lines[0])
		if field == Chapter && integerPattern.MatchString(v) {
			first, err := strconv.Atoi(v)
			if err == nil {
				for i := range out {
					out[i] = data.Ptr(strconv.Itoa(first + i))
				}
				return out
			}
		}
		for i := range out {
			out[i] = nullable(v)
		}
		return out
	}
	for i := 0; i < n && i < len(lines); i++ {
		out[i] = nullable(strings.TrimSpace(lines[i]))
	}
	return out
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return data.Ptr(v)
}
