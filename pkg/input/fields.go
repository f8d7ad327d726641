// Package input turns multi-line field text into chapter records and back.
//
// Each line of a field belongs to one chapter. A single line applies to
// every chapter, and a lone integer chapter number counts up from there.
package input

import (
	"regexp"
	"slices"
	"strings"

	"github.com/facette/natsort"
)

type Field string

const (
	Manga       Field = "manga"
	Group1      Field = "group_1"
	Group2      Field = "group_2"
	Group3      Field = "group_3"
	Group4      Field = "group_4"
	Group5      Field = "group_5"
	Groups      Field = "groups"
	Volume      Field = "volume"
	Chapter     Field = "chapter"
	Title       Field = "title"
	Language    Field = "language"
	ExternalURL Field = "external_url"
	Uploader    Field = "uploader"
)

var (
	GroupSlots = []Field{Group1, Group2, Group3, Group4, Group5}

	UploadFields = []Field{Manga, Group1, Group2, Group3, Group4, Group5, Volume, Chapter, Title, Language, ExternalURL}
	EditFields   = []Field{Manga, Groups, Volume, Chapter, Title, Language, ExternalURL, Uploader}
	FilterFields = []Field{Manga, Groups, Uploader, Volume, Chapter, Language}
)

var integerPattern = regexp.MustCompile(`^\d+$`)

// ParseField maps a user supplied name such as "external-url" onto a Field.
func ParseField(name string) (Field, bool) {
	f := Field(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	switch f {
	case "group":
		return Groups, true
	case "number":
		return Chapter, true
	case "url":
		return ExternalURL, true
	}
	known := slices.Contains(UploadFields, f) || slices.Contains(EditFields, f)
	return f, known
}

// Lines splits field text into lines. Empty text has no lines, a single
// trailing newline does not start another one and carriage returns are
// dropped.
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r", "")
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// SortFiles returns the archive paths in natural order.
func SortFiles(files []string) []string {
	out := slices.Clone(files)
	natsort.Sort(out)
	return out
}
