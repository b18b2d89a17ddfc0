package pdfsheet_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrm-ticketing/internal/pdfsheet"
	"qrm-ticketing/internal/render"
)

const testFontPath = "../../fonts/DejaVuSans.ttf"

func TestRenderEmptySetNothingExported(t *testing.T) {
	engine := pdfsheet.NewEngine(testFontPath, "dejavu", nil)

	_, _, err := engine.Render(context.Background(), nil, pdfsheet.DefaultConfig(), nil)
	assert.ErrorIs(t, err, pdfsheet.ErrNothingExported)
}

func TestFilename(t *testing.T) {
	at := time.UnixMilli(1717200000123)
	assert.Equal(t, "qrcodes_2025-06-01_1717200000123.pdf",
		pdfsheet.Filename("2025-06-01", at))
}

func requireFont(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(testFontPath); err != nil {
		t.Skipf("font not available: %v", err)
	}
}

func ticketItem(t *testing.T, reference string, number int) pdfsheet.Item {
	t.Helper()
	png, err := render.NewRenderer(120, 16).Render("qrm://t/"+reference, reference, number)
	require.NoError(t, err)
	return pdfsheet.Item{
		Name:      "ticket_" + reference + ".png",
		Reference: reference,
		Number:    number,
		Fetch: func(ctx context.Context) ([]byte, error) {
			return png, nil
		},
	}
}

func TestRenderSheetDocument(t *testing.T) {
	requireFont(t)
	engine := pdfsheet.NewEngine(testFontPath, "dejavu", nil)

	items := []pdfsheet.Item{
		ticketItem(t, "aa11ff00", 1),
		ticketItem(t, "bb22cc33", 2),
		// Undecodable bytes are skipped without consuming a cell.
		{Name: "broken.png", Reference: "cc33dd44", Number: 3,
			Fetch: func(ctx context.Context) ([]byte, error) {
				return []byte("not a png"), nil
			}},
		ticketItem(t, "dd44ee55", 4),
	}

	var attempts []int
	doc, report, err := engine.Render(context.Background(), items,
		pdfsheet.DefaultConfig(), func(processed, total int) {
			attempts = append(attempts, processed)
			assert.Equal(t, 4, total)
		})

	require.NoError(t, err)
	assert.Equal(t, 3, report.Drawn)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, []int{1, 2, 3, 4}, attempts)
	require.Greater(t, len(doc), 4)
	assert.Equal(t, "%PDF", string(doc[:4]))
}

func TestRenderAllUndecodableNothingExported(t *testing.T) {
	requireFont(t)
	engine := pdfsheet.NewEngine(testFontPath, "dejavu", nil)

	items := []pdfsheet.Item{
		{Name: "broken.png", Reference: "aa11ff00", Number: 1,
			Fetch: func(ctx context.Context) ([]byte, error) {
				return []byte("junk"), nil
			}},
	}

	_, report, err := engine.Render(context.Background(), items, pdfsheet.DefaultConfig(), nil)
	assert.ErrorIs(t, err, pdfsheet.ErrNothingExported)
	assert.Equal(t, 1, report.Skipped)
}

func TestRenderFetchesEachItemOnce(t *testing.T) {
	requireFont(t)
	engine := pdfsheet.NewEngine(testFontPath, "dejavu", nil)

	refs := []string{"aa11ff00", "bb22cc33", "cc33dd44"}
	fetches := make([]int, len(refs))
	items := make([]pdfsheet.Item, len(refs))
	for i, ref := range refs {
		png, err := render.NewRenderer(120, 16).Render("qrm://t/"+ref, ref, i+1)
		require.NoError(t, err)
		idx := i
		items[i] = pdfsheet.Item{
			Name:      "ticket_" + ref + ".png",
			Reference: ref,
			Number:    i + 1,
			Fetch: func(ctx context.Context) ([]byte, error) {
				fetches[idx]++
				return png, nil
			},
		}
	}

	_, report, err := engine.Render(context.Background(), items,
		pdfsheet.DefaultConfig(), nil)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Drawn)
	// The ratio sample must not cost an extra fetch of the first item.
	assert.Equal(t, []int{1, 1, 1}, fetches)
}

func TestRenderPaginatesAcrossSkips(t *testing.T) {
	requireFont(t)
	engine := pdfsheet.NewEngine(testFontPath, "dejavu", nil)

	cfg := pdfsheet.DefaultConfig()
	cfg.SinglePerPage = true

	broken := pdfsheet.Item{Name: "broken.png", Reference: "ee55ff66", Number: 2,
		Fetch: func(ctx context.Context) ([]byte, error) {
			return []byte("junk"), nil
		}}
	items := []pdfsheet.Item{
		ticketItem(t, "aa11ff00", 1),
		broken,
		ticketItem(t, "bb22cc33", 3),
		ticketItem(t, "cc33dd44", 4),
	}

	_, report, err := engine.Render(context.Background(), items, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Drawn)
	assert.Equal(t, 1, report.Skipped)
	// Skips at a page boundary must not leave blank pages behind.
	assert.Equal(t, 3, report.Pages)
}

func TestRenderSinglePerPagePagination(t *testing.T) {
	requireFont(t)
	engine := pdfsheet.NewEngine(testFontPath, "dejavu", nil)

	cfg := pdfsheet.DefaultConfig()
	cfg.SinglePerPage = true

	items := []pdfsheet.Item{
		ticketItem(t, "aa11ff00", 1),
		ticketItem(t, "bb22cc33", 2),
		ticketItem(t, "cc33dd44", 3),
	}

	_, report, err := engine.Render(context.Background(), items, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Drawn)
	assert.Equal(t, 3, report.Pages)
}
