package stream

import (
	"bufio"
	"context"
	"io"
)

const maxLineSize = 1024 * 1024 // 1 MB

// ReadLines scans r line by line and calls fn for every non-empty line until
// EOF, a scan error, ctx cancellation, or an error returned by fn. The slice
// passed to fn is only valid for the duration of the call.
func ReadLines(ctx context.Context, r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
