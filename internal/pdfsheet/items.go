package pdfsheet

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"qrm-ticketing/internal/blob"
)

// UnknownNumber sorts items without a recoverable sequence number after
// everything numbered.
const UnknownNumber = math.MaxInt32

// Item is one export candidate: its stored name, recovered label fields and
// a lazy fetch of the image bytes (fetched one at a time during render).
type Item struct {
	Name      string
	Reference string
	Number    int
	Fetch     func(ctx context.Context) ([]byte, error)
}

var numberKeys = []string{"no", "number", "order", "ticketNo", "ticket_no"}
var referenceKeys = []string{"ref", "reference", "ticketRef", "ticket_ref"}

var hexRunPattern = regexp.MustCompile(`[A-Fa-f0-9]{6,}`)

// ItemsFromStore lists one generation folder and recovers each image's
// sequence number and reference from its custom metadata, falling back to
// the filename when metadata is missing.
func ItemsFromStore(ctx context.Context, store blob.Store, folder string) ([]Item, error) {
	prefix := "qrcodes/" + folder
	listing, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	items := make([]Item, 0, len(listing.Items))
	for _, entry := range listing.Items {
		path := prefix + "/" + entry.Name

		number := UnknownNumber
		for _, k := range numberKeys {
			if n, err := strconv.Atoi(entry.Meta[k]); err == nil {
				number = n
				break
			}
		}

		reference := ""
		for _, k := range referenceKeys {
			if v := entry.Meta[k]; v != "" {
				reference = v
				break
			}
		}
		if reference == "" {
			reference = extractReference(entry.Name)
		}

		items = append(items, Item{
			Name:      entry.Name,
			Reference: reference,
			Number:    number,
			Fetch: func(ctx context.Context) ([]byte, error) {
				rc, err := store.Open(ctx, path)
				if err != nil {
					return nil, err
				}
				defer rc.Close()
				return io.ReadAll(rc)
			},
		})
	}

	SortItems(items)
	return items, nil
}

// extractReference recovers a reference from a filename: the first hex run
// of 6+ characters, else the name without its extension.
func extractReference(name string) string {
	if m := hexRunPattern.FindString(name); m != "" {
		return m
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// SortItems orders export candidates: unknown sequence numbers last, then
// ascending number, then reference, then name. Stable, so re-sorting an
// already sorted list changes nothing.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		aUnknown := a.Number == UnknownNumber
		bUnknown := b.Number == UnknownNumber
		if aUnknown != bUnknown {
			return !aUnknown
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		if a.Reference != b.Reference {
			return a.Reference < b.Reference
		}
		return a.Name < b.Name
	})
}
