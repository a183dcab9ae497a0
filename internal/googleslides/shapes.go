package googleslides

import (
	"strings"

	"google.golang.org/api/slides/v1"

	"github.com/smorand/slides-mirror/internal/host"
)

const (
	emuPerPoint   = 12700.0
	notesBodyType = "BODY"
	unitPoints    = "PT"
	tableCellSep  = "\t"
	tableRowSep   = "\n"
)

// pageShapes flattens a page's elements, groups included, into shapes in
// document order.
func pageShapes(page *slides.Page) []host.Shape {
	if page == nil {
		return nil
	}
	return appendShapes(nil, page.PageElements)
}

func appendShapes(dst []host.Shape, elements []*slides.PageElement) []host.Shape {
	for _, el := range elements {
		if el == nil {
			continue
		}
		if el.ElementGroup != nil {
			dst = appendShapes(dst, el.ElementGroup.Children)
			continue
		}
		dst = append(dst, elementShape(el))
	}
	return dst
}

func elementShape(el *slides.PageElement) host.Shape {
	var s host.Shape
	scaleX, scaleY := 1.0, 1.0
	if t := el.Transform; t != nil {
		s.Left = toPoints(t.TranslateX, t.Unit)
		s.Top = toPoints(t.TranslateY, t.Unit)
		if t.ScaleX != 0 {
			scaleX = t.ScaleX
		}
		if t.ScaleY != 0 {
			scaleY = t.ScaleY
		}
	}
	if el.Size != nil {
		if el.Size.Width != nil {
			s.Width = dimensionPoints(el.Size.Width) * scaleX
		}
		if el.Size.Height != nil {
			s.Height = dimensionPoints(el.Size.Height) * scaleY
		}
	}

	switch {
	case el.Shape != nil && el.Shape.Text != nil:
		s.HasText = true
		s.Text = textContent(el.Shape.Text)
	case el.Table != nil:
		s.HasText = true
		s.Text = tableText(el.Table)
	}
	return s
}

func toPoints(v float64, unit string) float64 {
	if unit == unitPoints {
		return v
	}
	return v / emuPerPoint
}

func dimensionPoints(d *slides.Dimension) float64 {
	return toPoints(d.Magnitude, d.Unit)
}

// textContent concatenates the text runs of a text body. Paragraph markers
// are part of the runs, so line breaks survive.
func textContent(text *slides.TextContent) string {
	if text == nil {
		return ""
	}
	var b strings.Builder
	for _, el := range text.TextElements {
		if el.TextRun != nil {
			b.WriteString(el.TextRun.Content)
		} else if el.AutoText != nil {
			b.WriteString(el.AutoText.Content)
		}
	}
	return b.String()
}

func tableText(table *slides.Table) string {
	var b strings.Builder
	for r, row := range table.TableRows {
		if r > 0 {
			b.WriteString(tableRowSep)
		}
		for c, cell := range row.TableCells {
			if c > 0 {
				b.WriteString(tableCellSep)
			}
			b.WriteString(textContent(cell.Text))
		}
	}
	return b.String()
}

// speakerNotes returns the text of the notes page BODY placeholder. A missing
// placeholder or one holding only whitespace means the slide has no notes.
func speakerNotes(slide *slides.Page) (string, bool) {
	if slide == nil || slide.SlideProperties == nil || slide.SlideProperties.NotesPage == nil {
		return "", false
	}
	for _, el := range slide.SlideProperties.NotesPage.PageElements {
		if el == nil || el.Shape == nil || el.Shape.Placeholder == nil {
			continue
		}
		if el.Shape.Placeholder.Type != notesBodyType {
			continue
		}
		text := strings.TrimRight(textContent(el.Shape.Text), "\n")
		if strings.TrimSpace(text) == "" {
			return "", false
		}
		return text, true
	}
	return "", false
}
