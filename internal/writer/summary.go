// SPDX-License-Identifier: MIT

package writer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Render writes a human-readable run summary, one line per dataset.
func (r *Result) Render(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "DATASET\tROWS\tCOLS\tBYTES\tTIME\tRESULT\n")
	for _, s := range r.Summaries {
		result := "ok"
		if s.Err != nil {
			result = s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			s.Dataset, s.Rows, s.Columns, s.Bytes, s.Elapsed.Round(time.Millisecond), result)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nrun %s for %s: %d dataset(s), %d failed\n",
		r.RunID, r.Date, len(r.Summaries), r.Failed())
}
