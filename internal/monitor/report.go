package monitor

import (
	"bufio"
	"fmt"
	"io"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// WriteReport writes the report block for one visit, ending with a blank
// separator line
func WriteReport(w io.Writer, v types.Visit) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "URL: %s\n", v.URL)

	if v.HasStatus() {
		if v.Reason != "" {
			fmt.Fprintf(bw, "Status: %d %s\n", v.StatusCode, v.Reason)
		} else {
			fmt.Fprintf(bw, "Status: %d\n", v.StatusCode)
		}
	} else {
		fmt.Fprintf(bw, "Status: %s\n", v.Kind.Label())
	}

	if v.Redirect != "" {
		fmt.Fprintf(bw, "Redirected URL: %s\n", v.Redirect)
	}
	for _, ref := range v.Referenced {
		fmt.Fprintf(bw, "Referenced URL: %s\n", ref)
	}

	if v.Kind == types.KindMissingRedirect {
		fmt.Fprintf(bw, "Error: %s\n", v.Error)
	}
	if v.FollowNote != "" {
		fmt.Fprintf(bw, "Error: %s\n", v.FollowNote)
	}

	bw.WriteString("\n")
	return bw.Flush()
}
