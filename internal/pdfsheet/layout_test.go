package pdfsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Small round-number geometry so the expected grid is obvious: 100px square
// cells on a 320x240 page with no margins or gutters.
func testConfig() Config {
	return Config{
		PageWidth:      320,
		PageHeight:     240,
		MinCellWidthPx: 100,
		LabelScale:     0.095,
		MinLabelScale:  0.07,
		DefaultRatio:   1.0,
	}
}

func TestPlanGridPacksCells(t *testing.T) {
	grid := testConfig().PlanGrid(1.0)

	assert.Equal(t, 100, grid.CellW)
	assert.Equal(t, 100, grid.CellH)
	assert.Equal(t, 3, grid.Columns)
	assert.Equal(t, 2, grid.Rows)
	assert.Equal(t, 6, grid.PerPage())
}

func TestPlanGridRatioFloor(t *testing.T) {
	// Ratios below 1.0 (corrupt sample) are clamped so cells stay at least
	// square.
	grid := testConfig().PlanGrid(0.4)
	assert.Equal(t, grid.CellW, grid.CellH)
}

func TestPlanGridTallCellsReduceRows(t *testing.T) {
	grid := testConfig().PlanGrid(2.0)

	assert.Equal(t, 200, grid.CellH)
	assert.Equal(t, 3, grid.Columns)
	assert.Equal(t, 1, grid.Rows)
}

func TestPlanGridSinglePerPage(t *testing.T) {
	cfg := testConfig()
	cfg.SinglePerPage = true
	grid := cfg.PlanGrid(1.0)

	assert.Equal(t, 1, grid.PerPage())

	left, top := grid.CellOrigin(0)
	assert.Equal(t, 110, left)
	assert.Equal(t, 70, top)
}

func TestPlanGridDefaultGeometry(t *testing.T) {
	grid := DefaultConfig().PlanGrid(1.12)

	assert.Equal(t, 94, grid.CellW)
	assert.Equal(t, 106, grid.CellH)
	assert.Equal(t, 11, grid.Columns)
	assert.Equal(t, 14, grid.Rows)
	assert.Equal(t, 154, grid.PerPage())
}

func TestCellOriginWalksRowMajor(t *testing.T) {
	grid := testConfig().PlanGrid(1.0)

	left, top := grid.CellOrigin(0)
	assert.Equal(t, 0, left)
	assert.Equal(t, 0, top)

	left, top = grid.CellOrigin(2)
	assert.Equal(t, 200, left)
	assert.Equal(t, 0, top)

	left, top = grid.CellOrigin(3)
	assert.Equal(t, 0, left)
	assert.Equal(t, 100, top)
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 2, PageCount(7, 6))
	assert.Equal(t, 7, PageCount(7, 1))
	assert.Equal(t, 1, PageCount(6, 6))
	assert.Equal(t, 0, PageCount(0, 6))
}

func TestFitLabelSizeShrinksUntilFit(t *testing.T) {
	// Text measures 12x the font size: the initial 9.5pt label is 114 wide,
	// over the 95px allowance, so the size must shrink.
	calls := 0
	measure := func(size float64) (float64, error) {
		calls++
		return size * 12, nil
	}

	size := FitLabelSize(measure, 100, 0.095, 0.07)

	assert.Less(t, size, 9.5)
	// One shrink step may land just under the floor before the loop exits.
	assert.GreaterOrEqual(t, size, 7.0*0.95)
	require.Greater(t, calls, 1)
}

func TestFitLabelSizeKeepsFittingText(t *testing.T) {
	size := FitLabelSize(func(size float64) (float64, error) {
		return size * 2, nil
	}, 100, 0.095, 0.07)

	assert.Equal(t, 9.5, size)
}

func TestFitLabelSizeDeterministic(t *testing.T) {
	measure := func(size float64) (float64, error) { return size * 12, nil }
	first := FitLabelSize(measure, 100, 0.095, 0.07)
	second := FitLabelSize(measure, 100, 0.095, 0.07)
	assert.Equal(t, first, second)
}
