package data

// Matcher decides whether a chapter number is selected. A nil number stands
// for chapters without one.
type Matcher interface {
	Match(number *string) bool
}

// Selection narrows a chapter listing. Nil slices place no constraint.
type Selection struct {
	MangaIDs  []string
	Groups    []string
	Uploaders []string
	Volumes   []*string // nil entries select chapters without a volume
	Languages []string
	Numbers   Matcher // applied client side, the API filters one number only
}

// Empty reports whether nothing was constrained. Listing every chapter on
// the site is never what the user meant, so callers return nothing instead.
func (s Selection) Empty() bool {
	return s.MangaIDs == nil && s.Groups == nil && s.Uploaders == nil &&
		s.Volumes == nil && s.Languages == nil && s.Numbers == nil
}

// MatchVolume applies the volume constraint.
func (s Selection) MatchVolume(volume *string) bool {
	if s.Volumes == nil {
		return true
	}
	for _, v := range s.Volumes {
		if equalPtr(v, volume) {
			return true
		}
	}
	return false
}
