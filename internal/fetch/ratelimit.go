// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// newLimiter returns nil when bytesPerSec disables limiting.
func newLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// limitedReader throttles reads to the limiter's rate. Reads are capped at
// the burst size so WaitN never rejects a request.
type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if burst := l.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := l.r.Read(p)
	if n > 0 {
		if waitErr := l.limiter.WaitN(l.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
