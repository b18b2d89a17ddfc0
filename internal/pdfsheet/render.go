package pdfsheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/signintech/gopdf"

	"qrm-ticketing/internal/logger"
)

// ErrNothingExported: every export candidate failed to decode; no document
// is emitted for that run.
var ErrNothingExported = errors.New("no image could be exported")

// Progress fires after each image fetch/decode attempt, whether or not it
// drew, so failed decodes still advance the indicator.
type Progress func(processed, total int)

// Report summarises one export run.
type Report struct {
	Drawn   int
	Skipped int
	Pages   int
}

// Engine renders a sorted item list into a paginated sheet document. The
// caption band of each cell is repainted rather than trusting the text baked
// into the source images, so relabeling stays consistent.
type Engine struct {
	FontPath string
	FontName string
	Logger   *logger.Logger
}

func NewEngine(fontPath, fontName string, log *logger.Logger) *Engine {
	return &Engine{FontPath: fontPath, FontName: fontName, Logger: log}
}

// Render lays the items out page by page and returns the finished document.
// Items whose bytes fail to decode are skipped without consuming a cell.
func (e *Engine) Render(ctx context.Context, items []Item, cfg Config, progress Progress) ([]byte, Report, error) {
	if len(items) == 0 {
		return nil, Report{}, ErrNothingExported
	}

	// The first item doubles as the ratio sample; it is fetched once and
	// reused when the loop reaches it.
	sample := e.fetchImage(ctx, items[0])
	grid := cfg.PlanGrid(ratioOf(sample, cfg.DefaultRatio))
	perPage := grid.PerPage()

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{
		Unit:     gopdf.UnitPT,
		PageSize: gopdf.Rect{W: float64(cfg.PageWidth), H: float64(cfg.PageHeight)},
	})
	if err := pdf.AddTTFFont(e.FontName, e.FontPath); err != nil {
		return nil, Report{}, fmt.Errorf("load font %s: %w", e.FontPath, err)
	}
	pdf.AddPage()

	topPadPx := max(cfg.mmToPx(cfg.LabelTopPadMM), 0)
	nudgePx := max(cfg.mmToPx(cfg.LabelNudgeMM), 0)

	total := len(items)
	report := Report{}
	cellsOnPage := 0

	for i, item := range items {
		img := sample
		if i > 0 {
			img = e.fetchImage(ctx, item)
		}
		if progress != nil {
			progress(report.Drawn+report.Skipped+1, total)
		}
		if img == nil {
			report.Skipped++
			continue
		}

		// The break keys off cells actually placed, so a failed blit never
		// strands an empty page behind it.
		if cellsOnPage == perPage {
			pdf.AddPage()
			cellsOnPage = 0
		}

		left, top := grid.CellOrigin(cellsOnPage)
		if err := pdf.ImageFrom(img, float64(left), float64(top), &gopdf.Rect{
			W: float64(grid.CellW),
			H: float64(grid.CellH),
		}); err != nil {
			e.warn(fmt.Sprintf("draw %s: %v", item.Name, err))
			report.Skipped++
			continue
		}

		// The source image is QR-square plus a baked-in label band; repaint
		// that band and caption it afresh.
		footerH := max(grid.CellH-grid.CellW, 0)
		if footerH > 0 {
			bottom := top + grid.CellH
			maskTop := max(bottom-footerH-topPadPx, top)

			pdf.SetFillColor(255, 255, 255)
			pdf.RectFromUpperLeftWithStyle(float64(left), float64(maskTop),
				float64(grid.CellW), float64(bottom-maskTop), "F")
			pdf.SetFillColor(0, 0, 0)

			caption := itemCaption(item)
			size := FitLabelSize(func(s float64) (float64, error) {
				if err := pdf.SetFont(e.FontName, "", s); err != nil {
					return 0, err
				}
				return pdf.MeasureTextWidth(caption)
			}, float64(grid.CellW), cfg.LabelScale, cfg.MinLabelScale)

			if err := pdf.SetFont(e.FontName, "", size); err == nil {
				w, _ := pdf.MeasureTextWidth(caption)
				pdf.SetX(float64(left) + (float64(grid.CellW)-w)/2)
				pdf.SetY(float64(maskTop - nudgePx))
				_ = pdf.Cell(nil, caption)
			}
		}

		cellsOnPage++
		report.Drawn++
	}

	if report.Drawn == 0 {
		return nil, report, ErrNothingExported
	}

	report.Pages = PageCount(report.Drawn, perPage)

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, report, fmt.Errorf("write pdf: %w", err)
	}

	if e.Logger != nil {
		e.Logger.LogExport("sheet", fmt.Sprintf("%d drawn, %d skipped, %d pages",
			report.Drawn, report.Skipped, report.Pages))
	}
	return buf.Bytes(), report, nil
}

// ratioOf is the sample image's height/width ratio; the fallback covers sets
// whose first item does not decode.
func ratioOf(sample image.Image, fallback float64) float64 {
	if sample == nil {
		return fallback
	}
	b := sample.Bounds()
	if b.Dx() <= 0 {
		return fallback
	}
	return float64(b.Dy()) / float64(b.Dx())
}

func (e *Engine) fetchImage(ctx context.Context, item Item) image.Image {
	data, err := item.Fetch(ctx)
	if err != nil {
		e.warn(fmt.Sprintf("fetch %s: %v", item.Name, err))
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		e.warn(fmt.Sprintf("decode %s: %v", item.Name, err))
		return nil
	}
	return img
}

func itemCaption(item Item) string {
	ref := item.Reference
	if ref == "" {
		ref = "-"
	}
	no := "?"
	if item.Number != UnknownNumber {
		no = fmt.Sprintf("%d", item.Number)
	}
	return fmt.Sprintf("Ref.: %s, No: %s", ref, no)
}

func (e *Engine) warn(message string) {
	if e.Logger != nil {
		e.Logger.Warn("EXPORT", message)
	}
}

// Filename is the export naming convention: folder key plus the generation
// timestamp.
func Filename(folder string, at time.Time) string {
	return fmt.Sprintf("qrcodes_%s_%d.pdf", folder, at.UnixMilli())
}
