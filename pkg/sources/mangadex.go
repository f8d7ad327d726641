package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/utils"
	"go.uber.org/zap"
)

const (
	pageSize = 100
	// The API refuses offset+limit beyond this.
	maxListResults = 10000
)

var contentRatings = []string{"safe", "suggestive", "erotica", "pornographic"}

type relationship struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Chapter is a chapter entity as the API returns it.
type Chapter struct {
	ID         string `json:"id"`
	Attributes struct {
		Volume      *string `json:"volume"`
		Chapter     *string `json:"chapter"`
		Title       *string `json:"title"`
		Language    *string `json:"translatedLanguage"`
		ExternalURL *string `json:"externalUrl"`
		Version     int     `json:"version"`
	} `json:"attributes"`
	Relationships []relationship `json:"relationships"`
}

func (c *Chapter) ToChapter() data.Chapter {
	out := data.Chapter{
		ID:          c.ID,
		Version:     c.Attributes.Version,
		Volume:      c.Attributes.Volume,
		Number:      c.Attributes.Chapter,
		Title:       c.Attributes.Title,
		Language:    c.Attributes.Language,
		ExternalURL: c.Attributes.ExternalURL,
		Groups:      []string{},
	}
	for _, rel := range c.Relationships {
		switch rel.Type {
		case "manga":
			out.MangaID = rel.ID
		case "scanlation_group":
			out.Groups = append(out.Groups, rel.ID)
		case "user":
			out.UploaderID = rel.ID
		}
	}
	return out
}

type chapterList struct {
	Data   []Chapter `json:"data"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Total  int       `json:"total"`
}

// MangaDex exposes the chapter endpoints the bulk operations need.
type MangaDex struct {
	api    *utils.API
	logger *zap.Logger
}

func NewMangaDex(api *utils.API, logger *zap.Logger) *MangaDex {
	return &MangaDex{api: api, logger: logger.Named("mangadex")}
}

// ListChapters returns every chapter matching sel, in API order. An empty
// selection returns nothing without calling the API.
func (m *MangaDex) ListChapters(ctx context.Context, sel data.Selection) ([]data.Chapter, error) {
	if sel.Empty() {
		return nil, nil
	}

	params := url.Values{}
	for _, g := range sel.Groups {
		params.Add("groups[]", g)
	}
	for _, u := range sel.Uploaders {
		params.Add("uploader[]", u)
	}
	for _, v := range sel.Volumes {
		if v == nil {
			params.Add("volume[]", "none")
		} else {
			params.Add("volume[]", *v)
		}
	}
	for _, l := range sel.Languages {
		params.Add("translatedLanguage[]", l)
	}

	var out []data.Chapter
	mangaIDs := sel.MangaIDs
	if mangaIDs == nil {
		mangaIDs = []string{""}
	}
	for _, mangaID := range mangaIDs {
		query := cloneValues(params)
		if mangaID != "" {
			query.Set("manga", mangaID)
		}
		chapters, err := m.paginate(ctx, "chapter", false, query)
		if err != nil {
			return nil, err
		}
		out = append(out, chapters...)
	}
	return filterChapters(out, sel, false), nil
}

// ListUnavailable lists deactivated and deleted chapters through the admin
// endpoint. Volumes and chapter numbers are filtered locally.
func (m *MangaDex) ListUnavailable(ctx context.Context, sel data.Selection) ([]data.Chapter, error) {
	if sel.Empty() {
		return nil, nil
	}

	params := url.Values{}
	for _, g := range sel.Groups {
		params.Add("groups[]", g)
	}
	for _, u := range sel.Uploaders {
		params.Add("uploader[]", u)
	}
	for _, l := range sel.Languages {
		params.Add("translatedLanguage[]", l)
	}
	for _, id := range sel.MangaIDs {
		params.Add("manga[]", id)
	}

	chapters, err := m.paginate(ctx, "admin/chapter", true, params)
	if err != nil {
		return nil, err
	}
	return filterChapters(chapters, sel, true), nil
}

// ChaptersByID fetches the current state of the given chapters, in batches
// of one page each. Chapters the API no longer returns are absent.
func (m *MangaDex) ChaptersByID(ctx context.Context, ids []string) ([]data.Chapter, error) {
	var out []data.Chapter
	for start := 0; start < len(ids); start += pageSize {
		end := min(start+pageSize, len(ids))
		params := url.Values{"limit": {strconv.Itoa(pageSize)}}
		for _, id := range ids[start:end] {
			params.Add("ids[]", id)
		}
		for _, r := range contentRatings {
			params.Add("contentRating[]", r)
		}

		var list chapterList
		if err := m.api.Get(ctx, "chapter", params, &list); err != nil {
			return nil, fmt.Errorf("failed to fetch chapters by id: %w", err)
		}
		for _, c := range list.Data {
			out = append(out, c.ToChapter())
		}
	}
	return out, nil
}

func (m *MangaDex) paginate(ctx context.Context, path string, auth bool, params url.Values) ([]data.Chapter, error) {
	params.Set("limit", strconv.Itoa(pageSize))
	for _, r := range contentRatings {
		params.Add("contentRating[]", r)
	}

	var out []data.Chapter
	offset := 0
	for {
		params.Set("offset", strconv.Itoa(offset))
		var list chapterList
		err := m.api.Do(ctx, utils.Request{
			Method: http.MethodGet,
			Path:   path,
			Auth:   auth,
			Query:  params,
		}, &list)
		if err != nil {
			return nil, fmt.Errorf("failed to list chapters at offset %d: %w", offset, err)
		}
		for _, c := range list.Data {
			out = append(out, c.ToChapter())
		}

		if offset == 0 && list.Total > maxListResults {
			m.logger.Warn("selection exceeds the listing limit, results are truncated",
				zap.Int("total", list.Total), zap.Int("limit", maxListResults))
		}
		if len(list.Data) == 0 || len(out) >= list.Total || offset+pageSize >= maxListResults {
			break
		}
		offset += pageSize
	}
	return out, nil
}

func filterChapters(chapters []data.Chapter, sel data.Selection, volumes bool) []data.Chapter {
	out := chapters[:0:0]
	for _, c := range chapters {
		if sel.Numbers != nil && !sel.Numbers.Match(c.Number) {
			continue
		}
		if volumes && !sel.MatchVolume(c.Volume) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// EditChapter replaces the chapter's metadata. The chapter's Version must
// be the last one observed.
func (m *MangaDex) EditChapter(ctx context.Context, chapter data.Chapter) error {
	return m.api.Do(ctx, utils.Request{
		Method: http.MethodPut,
		Path:   "chapter/" + chapter.ID,
		Auth:   true,
		JSON:   chapter.Edit(),
	}, nil)
}

func (m *MangaDex) MoveChapterManga(ctx context.Context, id, mangaID string) error {
	return m.api.Do(ctx, utils.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("admin/chapter/%s/move", id),
		Auth:   true,
		JSON:   map[string]string{"manga": mangaID},
	}, nil)
}

func (m *MangaDex) MoveChapterUploader(ctx context.Context, id, uploaderID string, version int) error {
	return m.api.Do(ctx, utils.Request{
		Method: http.MethodPut,
		Path:   "admin/chapter/" + id,
		Auth:   true,
		JSON:   map[string]any{"uploader": uploaderID, "version": version},
	}, nil)
}

func (m *MangaDex) DeleteChapter(ctx context.Context, id string) error {
	return m.api.Do(ctx, utils.Request{Method: http.MethodDelete, Path: "chapter/" + id, Auth: true}, nil)
}

func (m *MangaDex) DeactivateChapter(ctx context.Context, id string) error {
	return m.api.Do(ctx, utils.Request{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("admin/chapter/%s/activate", id),
		Auth:   true,
	}, nil)
}

func (m *MangaDex) ReactivateChapter(ctx context.Context, id string) error {
	return m.api.Do(ctx, utils.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("admin/chapter/%s/activate", id),
		Auth:   true,
	}, nil)
}

func (m *MangaDex) RestoreChapter(ctx context.Context, id string) error {
	return m.api.Do(ctx, utils.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("admin/chapter/%s/restore", id),
		Auth:   true,
	}, nil)
}
