package pdfsheet

import "math"

// Config holds the sheet geometry. Pages are A4 at ~150 dpi and all
// millimetre knobs convert against the 210mm page width.
type Config struct {
	PageWidth  int
	PageHeight int

	MarginMM       float64
	GutterMM       float64
	CellWidthMM    float64
	MinCellWidthPx int

	// Label band knobs: text size as a fraction of cell width, the shrink
	// floor, padding above the band and the baseline nudge.
	LabelScale    float64
	MinLabelScale float64
	LabelTopPadMM float64
	LabelNudgeMM  float64

	SinglePerPage bool

	// DefaultRatio is the height/width fallback when no sample image
	// decodes; the usual source is QR-square plus a label strip.
	DefaultRatio float64
}

func DefaultConfig() Config {
	return Config{
		PageWidth:      1240,
		PageHeight:     1754,
		MarginMM:       5,
		GutterMM:       2,
		CellWidthMM:    16,
		MinCellWidthPx: 48,
		LabelScale:     0.095,
		MinLabelScale:  0.07,
		LabelTopPadMM:  0,
		LabelNudgeMM:   0.1,
		DefaultRatio:   1.12,
	}
}

func (c Config) mmToPx(mm float64) int {
	return int(mm / 210.0 * float64(c.PageWidth))
}

// Grid is the resolved page geometry for one export run.
type Grid struct {
	PageWidth  int
	PageHeight int
	Columns    int
	Rows       int
	CellW      int
	CellH      int
	MarginPx   int
	GutterPx   int
	Single     bool
}

// PlanGrid derives the cell size and grid dimensions from the source
// image's height/width ratio. Cell height follows the ratio so images are
// never stretched to a different aspect.
func (c Config) PlanGrid(ratio float64) Grid {
	if ratio < 1.0 {
		ratio = 1.0
	}

	marginPx := max(c.mmToPx(c.MarginMM), 0)
	gutterPx := max(c.mmToPx(c.GutterMM), 0)
	cellW := max(c.mmToPx(c.CellWidthMM), c.MinCellWidthPx)
	cellH := int(math.Ceil(float64(cellW) * ratio))

	availW := c.PageWidth - marginPx*2
	availH := c.PageHeight - marginPx*2

	columns, rows := 1, 1
	if !c.SinglePerPage {
		columns = max(1, (availW+gutterPx)/(cellW+gutterPx))
		rows = max(1, (availH+gutterPx)/(cellH+gutterPx))
	}

	return Grid{
		PageWidth:  c.PageWidth,
		PageHeight: c.PageHeight,
		Columns:    columns,
		Rows:       rows,
		CellW:      cellW,
		CellH:      cellH,
		MarginPx:   marginPx,
		GutterPx:   gutterPx,
		Single:     c.SinglePerPage,
	}
}

// PerPage is the page's cell capacity.
func (g Grid) PerPage() int {
	return g.Columns * g.Rows
}

// CellOrigin returns the top-left corner for the Nth drawn cell on a page.
// Single-per-page cells are centered.
func (g Grid) CellOrigin(indexOnPage int) (left, top int) {
	if g.Single {
		left = (g.PageWidth - g.CellW) / 2
		top = max(g.MarginPx, (g.PageHeight-g.CellH)/2)
		return left, top
	}
	row := indexOnPage / g.Columns
	col := indexOnPage % g.Columns
	left = g.MarginPx + col*(g.CellW+g.GutterPx)
	top = g.MarginPx + row*(g.CellH+g.GutterPx)
	return left, top
}

// PageCount is how many pages n drawn cells occupy. Packing is strictly
// in-order, so the same drawn count always yields the same assignment.
func PageCount(drawn, perPage int) int {
	if drawn <= 0 || perPage <= 0 {
		return 0
	}
	return (drawn + perPage - 1) / perPage
}

// FitLabelSize shrinks the caption font in 5% steps until the measured
// width fits inside 95% of the cell or the floor is reached. measure
// reports the text width at a candidate size.
func FitLabelSize(measure func(size float64) (float64, error), cellW float64, scale, minScale float64) float64 {
	size := cellW * scale
	minSize := cellW * minScale
	maxWidth := cellW * 0.95

	w, err := measure(size)
	if err != nil {
		return size
	}
	for w > maxWidth && size > minSize {
		size *= 0.95
		if w, err = measure(size); err != nil {
			return size
		}
	}
	return size
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
