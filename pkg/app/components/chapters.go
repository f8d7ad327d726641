package components

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/mdbulk/pkg/app/styles"
	"github.com/kerbaras/mdbulk/pkg/data"
)

const nullCell = "-"

var chapterColumns = []table.Column{
	{Title: "ID", Width: 36},
	{Title: "Manga", Width: 36},
	{Title: "Vol", Width: 5},
	{Title: "Ch", Width: 7},
	{Title: "Title", Width: 30},
	{Title: "Lang", Width: 6},
	{Title: "Groups", Width: 36},
	{Title: "Ver", Width: 4},
}

// ChapterTable previews a list of chapters before a bulk operation.
type ChapterTable struct {
	Chapters []data.Chapter
	Width    int
	Height   int
}

func NewChapterTable(chapters []data.Chapter) *ChapterTable {
	return &ChapterTable{
		Chapters: chapters,
		Width:    160,
		Height:   len(chapters) + 2, // header and its border
	}
}

// Rows renders one row per chapter; null fields show as "-".
func (c *ChapterTable) Rows() []table.Row {
	rows := make([]table.Row, 0, len(c.Chapters))
	for _, ch := range c.Chapters {
		id := ch.ID
		if id == "" {
			id = ch.File
		}
		rows = append(rows, table.Row{
			cell(id),
			cell(ch.MangaID),
			cellPtr(ch.Volume),
			cellPtr(ch.Number),
			cellPtr(ch.Title),
			cellPtr(ch.Language),
			cell(strings.Join(ch.Groups, ",")),
			versionCell(ch.Version),
		})
	}
	return rows
}

func (c *ChapterTable) Model() table.Model {
	s := table.DefaultStyles()
	s.Header = styles.TableHeaderStyle
	s.Selected = lipgloss.NewStyle()

	return table.New(
		table.WithColumns(chapterColumns),
		table.WithRows(c.Rows()),
		table.WithHeight(c.Height),
		table.WithWidth(c.Width),
		table.WithStyles(s),
	)
}

func (c *ChapterTable) View() string {
	if len(c.Chapters) == 0 {
		return styles.MutedStyle.Render("No chapters matched")
	}
	return c.Model().View()
}

func cell(s string) string {
	if s == "" {
		return nullCell
	}
	return s
}

func cellPtr(p *string) string {
	if p == nil {
		return nullCell
	}
	return cell(*p)
}

func versionCell(v int) string {
	if v == 0 {
		return nullCell
	}
	return strconv.Itoa(v)
}
