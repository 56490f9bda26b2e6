// File: cmd/summary.go
package cmd

import (
	"fmt"
	"io"

	"github.com/xkilldash9x/reportcast/api/schemas"
)

// printSummary writes one line per delivery and the final "delivered N/M" line.
func printSummary(w io.Writer, s *schemas.RunSummary) {
	if s == nil {
		return
	}
	for _, o := range s.Outcomes {
		if o.Success {
			fmt.Fprintf(w, "  ok      %s (message_id=%s)\n", o.Target, o.MessageID)
			continue
		}
		fmt.Fprintf(w, "  failed  %s: %s\n", o.Target, o.Error)
	}
	if s.Err != nil {
		fmt.Fprintf(w, "aborted: %v\n", s.Err)
	}
	fmt.Fprintf(w, "delivered %s\n", s)
}
