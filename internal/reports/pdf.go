// Package reports renders the documents filed next to recovered evidence:
// the time offset sheet, the technician upload log, the per-job hash CSV and
// an HTML summary of a batch run.
package reports

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// A4 portrait in points, origin lower left.
const (
	pageHeight   = 842.0
	marginLeft   = 56.0
	marginTop    = 64.0
	marginBottom = 64.0
	lineHeight   = 16.0
	wrapColumns  = 90
)

const (
	fontRegular = "Helvetica"
	fontBold    = "Helvetica-Bold"
)

// pdfDocument is the JSON page description accepted by pdfcpu's create
// command.
type pdfDocument struct {
	Paper string             `json:"paper"`
	Pages map[string]pdfPage `json:"pages"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfText struct {
	Value    string     `json:"value"`
	Position [2]float64 `json:"pos"`
	Font     pdfFont    `json:"font"`
}

type pdfFont struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Color string `json:"col,omitempty"`
}

// layout places lines top to bottom and starts a new page when one fills.
type layout struct {
	pages []pdfPage
	y     float64
}

func newLayout() *layout {
	l := &layout{}
	l.newPage()
	return l
}

func (l *layout) newPage() {
	l.pages = append(l.pages, pdfPage{})
	l.y = pageHeight - marginTop
}

func (l *layout) add(value, font string, size int, indent float64) {
	if l.y < marginBottom {
		l.newPage()
	}
	if strings.TrimSpace(value) == "" {
		l.y -= lineHeight
		return
	}
	p := &l.pages[len(l.pages)-1]
	p.Content.Text = append(p.Content.Text, pdfText{
		Value:    value,
		Position: [2]float64{marginLeft + indent, l.y},
		Font:     pdfFont{Name: font, Size: size},
	})
	l.y -= lineHeight * float64(size) / 11
}

func (l *layout) title(s string) {
	l.add(s, fontBold, 18, 0)
	l.space()
}

func (l *layout) heading(s string) {
	l.space()
	l.add(s, fontBold, 13, 0)
}

// field writes "Label: value", leaving the value blank rather than omitting
// the row so every report has the same shape.
func (l *layout) field(label, value string) {
	if value == "" {
		value = "N/A"
	}
	for i, line := range wrap(label+": "+value, wrapColumns) {
		indent := 12.0
		if i > 0 {
			indent = 24
		}
		l.add(line, fontRegular, 11, indent)
	}
}

func (l *layout) paragraph(s string) {
	for _, line := range wrap(s, wrapColumns) {
		l.add(line, fontRegular, 11, 12)
	}
}

func (l *layout) footer(s string) {
	l.space()
	l.add(s, fontRegular, 9, 0)
}

func (l *layout) space() { l.y -= lineHeight / 2 }

func (l *layout) document() pdfDocument {
	doc := pdfDocument{Paper: "A4P", Pages: make(map[string]pdfPage, len(l.pages))}
	for i, p := range l.pages {
		doc.Pages[strconv.Itoa(i+1)] = p
	}
	return doc
}

// render writes the laid out pages to w as a PDF.
func (l *layout) render(w io.Writer) error {
	desc, err := json.Marshal(l.document())
	if err != nil {
		return err
	}
	conf := model.NewDefaultConfiguration()
	return api.Create(nil, bytes.NewReader(desc), w, conf)
}

// wrap breaks s on spaces into lines of at most width runes. Words longer
// than width are kept whole.
func wrap(s string, width int) []string {
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return lines
}
