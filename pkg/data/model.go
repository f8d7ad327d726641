package data

import (
	"slices"
	"time"
)

// Chapter is one remote chapter, or a draft of one that is about to be
// uploaded. ID and Version are empty until the server has created it.
type Chapter struct {
	ID          string   `json:"id,omitempty"`
	Version     int      `json:"version,omitempty"`
	MangaID     string   `json:"manga"`
	Groups      []string `json:"groups"`
	Volume      *string  `json:"volume"`
	Number      *string  `json:"chapter"`
	Title       *string  `json:"title"`
	Language    *string  `json:"translatedLanguage"`
	ExternalURL *string  `json:"externalUrl"`
	UploaderID  string   `json:"uploader,omitempty"`
	File        string   `json:"file,omitempty"` // Path to the page archive
}

// Clone returns a copy that shares no memory with c.
func (c Chapter) Clone() Chapter {
	out := c
	out.Groups = slices.Clone(c.Groups)
	out.Volume = clonePtr(c.Volume)
	out.Number = clonePtr(c.Number)
	out.Title = clonePtr(c.Title)
	out.Language = clonePtr(c.Language)
	out.ExternalURL = clonePtr(c.ExternalURL)
	return out
}

// SameContent reports whether the editable metadata of c and o match. Manga,
// uploader, version and file are not part of the comparison.
func (c Chapter) SameContent(o Chapter) bool {
	return c.ID == o.ID &&
		slices.Equal(c.Groups, o.Groups) &&
		equalPtr(c.Volume, o.Volume) &&
		equalPtr(c.Number, o.Number) &&
		equalPtr(c.Title, o.Title) &&
		equalPtr(c.Language, o.Language) &&
		equalPtr(c.ExternalURL, o.ExternalURL)
}

// Draft is the payload committed with an upload session.
func (c Chapter) Draft() ChapterDraft {
	return ChapterDraft{
		Volume:      c.Volume,
		Chapter:     c.Number,
		Title:       c.Title,
		Language:    c.Language,
		ExternalURL: c.ExternalURL,
	}
}

// Edit is the payload of a metadata edit.
func (c Chapter) Edit() ChapterEdit {
	groups := c.Groups
	if groups == nil {
		groups = []string{}
	}
	return ChapterEdit{
		Volume:      c.Volume,
		Chapter:     c.Number,
		Title:       c.Title,
		Language:    c.Language,
		ExternalURL: c.ExternalURL,
		Groups:      groups,
		Version:     c.Version,
	}
}

type ChapterDraft struct {
	Volume      *string `json:"volume"`
	Chapter     *string `json:"chapter"`
	Title       *string `json:"title"`
	Language    *string `json:"translatedLanguage"`
	ExternalURL *string `json:"externalUrl"`
}

type ChapterEdit struct {
	Volume      *string  `json:"volume"`
	Chapter     *string  `json:"chapter"`
	Title       *string  `json:"title"`
	Language    *string  `json:"translatedLanguage"`
	ExternalURL *string  `json:"externalUrl"`
	Groups      []string `json:"groups"`
	Version     int      `json:"version"`
}

// Tally accumulates the outcome of a bulk operation.
type Tally struct {
	Done      []string
	Skipped   []string
	Errored   []string
	Cancelled bool
}

func (t Tally) Total() int {
	return len(t.Done) + len(t.Skipped) + len(t.Errored)
}

// Snapshot is the {old, new} pair saved before an edit batch touches the
// server, kept for a manual revert.
type Snapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Old       []Chapter `json:"old"`
	New       []Chapter `json:"new"`
}

// SavedLogin is what a remembered login needs to resume a session.
type SavedLogin struct {
	Name         string `json:"name,omitempty"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
