package stream

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is the read size used by Consume.
const DefaultChunkSize = 4096

// Consume reads r until it ends, fails, or ctx is cancelled, feeding every
// chunk to a. Cancellation is checked between chunks; once it is observed
// nothing more is published. Consume does not close r.
func Consume(ctx context.Context, a *Assembler, r io.Reader) Result {
	buf := make([]byte, DefaultChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			a.Abort(err)
			return a.Result()
		}

		n, err := r.Read(buf)
		if n > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				a.Abort(ctxErr)
				return a.Result()
			}
			if a.Feed(buf[:n]).Terminal() {
				return a.Result()
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			a.Finish()
			return a.Result()
		case ctx.Err() != nil:
			a.Abort(ctx.Err())
			return a.Result()
		default:
			a.Fail(err)
			return a.Result()
		}
	}
}
