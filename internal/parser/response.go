package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

const (
	crlf          = "\r\n"
	headerEnd     = "\r\n\r\n"
	locationField = "location:"
)

// ParseStatus parses the status line "HTTP/x.y <code> <reason...>" at the
// start of raw. The reason keeps its internal spacing. The line ends at
// the first LF so a peer using bare LF line endings cannot spill its
// headers into the reason.
func ParseStatus(raw string) (int, string, error) {
	line, _, _ := strings.Cut(raw, "\n")
	line = strings.TrimSuffix(line, "\r")

	parts := strings.Split(line, " ")
	if len(parts) < 2 {
		return 0, "", statusError(line, types.ErrMalformedStatus)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", statusError(line, fmt.Errorf("%w: %v", types.ErrMalformedStatus, err))
	}

	return code, strings.Join(parts[2:], " "), nil
}

// ParseRedirectLocation returns the value of the Location header. The
// header name is matched case-insensitively and only within the header
// section; an empty value counts as absent.
func ParseRedirectLocation(raw string) (string, bool) {
	head, _ := SplitBody(raw)

	lines := strings.Split(head, crlf)
	for _, line := range lines[1:] {
		if len(line) < len(locationField) || !strings.EqualFold(line[:len(locationField)], locationField) {
			continue
		}
		value := strings.TrimSpace(line[len(locationField):])
		if value == "" {
			return "", false
		}
		return value, true
	}

	return "", false
}

// SplitBody separates the status line and headers from the body. A
// response without a blank line is all head.
func SplitBody(raw string) (head, body string) {
	head, body, found := strings.Cut(raw, headerEnd)
	if !found {
		return raw, ""
	}
	return head, body
}

// IsRedirect reports whether code is followed through its Location header
func IsRedirect(code int) bool {
	return code == 301 || code == 302
}

// IsSuccess reports whether code is a 2xx status
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

func statusError(line string, err error) error {
	return types.NewVisitError(types.KindParse, "parse status", fmt.Sprintf("%q", line), err)
}
