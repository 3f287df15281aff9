package ollama

import (
	"bufio"
	"bytes"
	"context"
	"io"
)

const maxLineSize = 1024 * 1024

// readLines feeds each non-empty NDJSON line to fn until fn reports done,
// fn fails, the body ends or ctx is cancelled.
func readLines(ctx context.Context, r io.Reader, fn func(line []byte) (done bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		done, err := fn(line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ClientError{Type: ErrTypeConnection, Message: "read stream", Cause: err}
	}
	return nil
}
