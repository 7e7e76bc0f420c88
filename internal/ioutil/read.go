package ioutil

import (
	"fmt"
	"io"
	"strings"
)

// ErrorBodyLimit caps how much of an error response body is read.
const ErrorBodyLimit = 1024

// ReadLimited reads up to limit bytes from r and returns the content as a
// trimmed string. A read failure is described in the result rather than
// dropped, since the result only feeds error messages and logs.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return strings.TrimSpace(string(body))
}
