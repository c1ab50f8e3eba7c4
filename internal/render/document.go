package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"regexp"

	"gitee.com/gooffice/gooffice/common"
	"gitee.com/gooffice/gooffice/document"
	"gitee.com/gooffice/gooffice/measurement"
)

// A4 portrait proportions in millimetres.
const (
	pageWidthMM  = 210.0
	pageHeightMM = 295.0
)

var whitespace = regexp.MustCompile(`\s+`)

// ExportFilename turns a title into a download file name.
func ExportFilename(title, ext string) string {
	name := whitespace.ReplaceAllString(title, "_")
	if name == "" {
		name = "chart"
	}
	return name + ext
}

// PageSlices splits an image into A4-proportioned horizontal bands. The
// image is scaled to the page width; every page but the last is full height.
func PageSlices(bounds image.Rectangle) []image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	pageH := int(float64(w) * pageHeightMM / pageWidthMM)
	var out []image.Rectangle
	for y := bounds.Min.Y; y < bounds.Max.Y; y += pageH {
		bottom := y + pageH
		if bottom > bounds.Max.Y {
			bottom = bounds.Max.Y
		}
		out = append(out, image.Rect(bounds.Min.X, y, bounds.Max.X, bottom))
	}
	return out
}

// ExportDocument builds a DOCX document holding the image, one page per
// A4-sized slice.
func ExportDocument(title string, img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("no image to export")
	}
	slices := PageSlices(img.Bounds())
	if len(slices) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidSize)
	}

	doc := document.New()
	if title != "" {
		doc.AddParagraph().AddRun().AddText(title)
	}

	pageWidth := measurement.Distance(pageWidthMM/25.4) * measurement.Inch
	for i, rect := range slices {
		page := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		draw.Draw(page, page.Bounds(), img, rect.Min, draw.Src)

		b, err := EncodeImage(page)
		if err != nil {
			return nil, err
		}
		ref, err := common.ImageFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("load page image: %w", err)
		}
		pic, err := doc.AddImage(ref)
		if err != nil {
			return nil, fmt.Errorf("add page image: %w", err)
		}

		run := doc.AddParagraph().AddRun()
		inline, err := run.AddDrawingInline(pic)
		if err != nil {
			return nil, fmt.Errorf("place page image: %w", err)
		}
		scale := float64(pageWidth) / float64(rect.Dx())
		inline.SetSize(pageWidth, measurement.Distance(float64(rect.Dy())*scale))

		if i < len(slices)-1 {
			run.AddPageBreak()
		}
	}

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return buf.Bytes(), nil
}
