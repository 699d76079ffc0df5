package qrcode

import (
	"bytes"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	qr "github.com/skip2/go-qrcode"
)

const (
	FormatPNG = "png"
	FormatSVG = "svg"
	FormatPDF = "pdf"

	defaultSize = 512
	minSize     = 128
	maxSize     = 2048
)

// Style is how a code is drawn.
type Style struct {
	Foreground string // #rrggbb
	Background string // #rrggbb
	Size       int    // pixels, PNG only
}

func (s Style) size() int {
	switch {
	case s.Size == 0:
		return defaultSize
	case s.Size < minSize:
		return minSize
	case s.Size > maxSize:
		return maxSize
	}
	return s.Size
}

func newCode(content string, s Style) (*qr.QRCode, error) {
	code, err := qr.New(content, qr.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code.ForegroundColor = parseHex(s.Foreground, color.Black)
	code.BackgroundColor = parseHex(s.Background, color.White)
	return code, nil
}

func RenderPNG(content string, s Style) ([]byte, error) {
	code, err := newCode(content, s)
	if err != nil {
		return nil, err
	}
	return code.PNG(s.size())
}

// RenderSVG draws one rect per dark module on a single background rect.
func RenderSVG(content string, s Style) ([]byte, error) {
	code, err := newCode(content, s)
	if err != nil {
		return nil, err
	}
	bitmap := code.Bitmap()
	n := len(bitmap)

	fg := hexOr(s.Foreground, "#000000")
	bg := hexOr(s.Background, "#ffffff")

	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" shape-rendering="crispEdges">`, n, n, s.size(), s.size())
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="%s"/>`, n, n, bg)
	fmt.Fprintf(&b, `<path fill="%s" d="`, fg)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&b, "M%d %dh1v1h-1z", x, y)
			}
		}
	}
	b.WriteString(`"/></svg>`)
	return []byte(b.String()), nil
}

// RenderPDF places the code centred on an A6 page with a caption.
func RenderPDF(content, title string, s Style) ([]byte, error) {
	png, err := RenderPNG(content, Style{Foreground: s.Foreground, Background: s.Background, Size: 1024})
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A6", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("cardsite", true)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))

	pageW, _ := pdf.GetPageSize()
	const side = 80.0
	pdf.ImageOptions("qr", (pageW-side)/2, 20, side, side, false, opts, 0, "")

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(10, 108)
	pdf.CellFormat(pageW-20, 8, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetX(10)
	pdf.CellFormat(pageW-20, 6, content, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func parseHex(s string, fallback color.Color) color.Color {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func hexOr(s, fallback string) string {
	if _, ok := parseHex(s, nil).(color.RGBA); ok {
		return "#" + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	}
	return fallback
}
