package main

import (
	"bookmark-manager/internal/service"
	"bookmark-manager/pkg/types"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	cardWidth    = 30
	cardsPerRow  = 3
	maxTitleCell = 48
	shortIDLen   = 8
)

type palette struct {
	accent lipgloss.Color
	muted  lipgloss.Color
}

func paletteFor(theme service.Theme) palette {
	if theme == service.ThemeDark {
		return palette{accent: lipgloss.Color("212"), muted: lipgloss.Color("245")}
	}
	return palette{accent: lipgloss.Color("63"), muted: lipgloss.Color("241")}
}

// renderView writes the derived view in the preferred mode. total is the size
// of the whole collection, used to tell an empty collection from a filtered one.
func renderView(w io.Writer, view []types.Bookmark, prefs service.Preferences, total int) {
	re := lipgloss.NewRenderer(w)
	colors := paletteFor(prefs.Theme)

	switch {
	case total == 0:
		fmt.Fprintln(w, "No bookmarks yet. Add one with `bookmarks add <url>`.")
		return
	case len(view) == 0:
		fmt.Fprintf(w, "No bookmarks match %q.\n", prefs.Search)
		return
	}

	if prefs.Mode == service.ViewList {
		fmt.Fprintln(w, renderTable(re, colors, view))
	} else {
		fmt.Fprintln(w, renderGrid(re, colors, view))
	}

	footer := fmt.Sprintf("%d bookmarks, sorted by %s", len(view), prefs.Sort)
	if prefs.Search != "" {
		footer = fmt.Sprintf("%d of %d bookmarks match %q, sorted by %s", len(view), total, prefs.Search, prefs.Sort)
	}
	fmt.Fprintln(w, re.NewStyle().Foreground(colors.muted).Render(footer))
}

func renderTable(re *lipgloss.Renderer, colors palette, view []types.Bookmark) string {
	header := re.NewStyle().Bold(true).Foreground(colors.accent).Padding(0, 1)
	cell := re.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle().Foreground(colors.muted)).
		Headers("ID", "TITLE", "DOMAIN", "ADDED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, b := range view {
		t.Row(
			shortID(b.ID),
			truncate(b.Title, maxTitleCell),
			service.DomainOf(b.URL),
			b.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return t.String()
}

func renderGrid(re *lipgloss.Renderer, colors palette, view []types.Bookmark) string {
	card := re.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.accent).
		Padding(0, 1).
		Width(cardWidth)
	title := re.NewStyle().Bold(true)
	muted := re.NewStyle().Foreground(colors.muted)

	var rows []string
	for start := 0; start < len(view); start += cardsPerRow {
		end := start + cardsPerRow
		if end > len(view) {
			end = len(view)
		}

		cards := make([]string, 0, cardsPerRow)
		for _, b := range view[start:end] {
			inner := cardWidth - 2
			cards = append(cards, card.Render(lipgloss.JoinVertical(lipgloss.Left,
				title.Render(truncate(b.Title, inner)),
				truncate(service.DomainOf(b.URL), inner),
				muted.Render(shortID(b.ID)+"  "+b.CreatedAt.Local().Format("2006-01-02")),
			)))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderNotice(w io.Writer, n *types.Notice) {
	if n == nil {
		return
	}
	re := lipgloss.NewRenderer(w)
	style := re.NewStyle().Foreground(lipgloss.Color("42"))
	if n.Kind == types.NoticeError {
		style = re.NewStyle().Foreground(lipgloss.Color("196"))
	}
	fmt.Fprintln(w, style.Render(n.Message))
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max-1]) + "…"
}
