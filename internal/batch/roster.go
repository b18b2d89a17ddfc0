package batch

import "strings"

// rosterRow is one parsed roster line: a caller-supplied reference plus the
// event fields copied onto the ticket.
type rosterRow struct {
	Reference string
	Name      string
	Date      string
	Start     string
	End       string
	Place     string
}

// parseRosterLine splits a `;`-delimited roster line into its six leading
// fields. Lines with fewer than six fields are skipped (ok=false); extra
// trailing fields are ignored. The format is positional and ragged lines are
// tolerated by contract, which is why this is a plain split rather than
// encoding/csv.
func parseRosterLine(line string) (rosterRow, bool) {
	fields := strings.Split(line, ";")
	if len(fields) < 6 {
		return rosterRow{}, false
	}
	return rosterRow{
		Reference: strings.TrimSpace(fields[0]),
		Name:      strings.TrimSpace(fields[1]),
		Date:      strings.TrimSpace(fields[2]),
		Start:     strings.TrimSpace(fields[3]),
		End:       strings.TrimSpace(fields[4]),
		Place:     strings.TrimSpace(fields[5]),
	}, true
}
