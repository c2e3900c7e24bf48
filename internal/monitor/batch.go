package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// RunBatch processes every line of r in order. Lines are trimmed but not
// filtered, so a blank line is reported like any other bad URL. Visit
// failures never stop the batch; only a read error or a cancelled
// context does.
func (m *Monitor) RunBatch(ctx context.Context, r io.Reader) (types.Results, error) {
	var results types.Results

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		line := strings.TrimSpace(scanner.Text())
		visits := m.Process(ctx, line)

		results.URLs++
		results.Visits += len(visits)
		for _, v := range visits {
			if v.Kind != types.KindOK {
				results.Errors++
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("failed to read url list: %w", err)
	}

	m.log.Info().
		Int("urls", results.URLs).
		Int("visits", results.Visits).
		Int("errors", results.Errors).
		Int64("panics", m.PanicCount()).
		Msg("batch complete")

	return results, nil
}
