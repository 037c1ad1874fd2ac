// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package limiter

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/time/rate"
)

var ErrLimitExceeded = errors.New("concurrency limit exceeded")

type (
	// Limiter throttles blob transfers: a concurrency cap on simultaneous
	// transfers plus a byte rate applied to the stream itself.
	Limiter interface {
		Acquire() error
		Release()
		Reader(ctx context.Context, r io.Reader) io.Reader
		Writer(ctx context.Context, w io.Writer) io.Writer
		Running() int
	}

	Config struct {
		Concurrency int `json:"concurrency"`
		MBPS        int `json:"mbps"`
	}

	reader struct {
		ctx        context.Context
		rate       *rate.Limiter
		underlying io.Reader
	}
	writer struct {
		ctx        context.Context
		rate       *rate.Limiter
		underlying io.Writer
	}
	limiter struct {
		running int32
		limit   int32
		rate    *rate.Limiter
	}
)

func New(cfg Config) Limiter {
	mb := 1 << 20
	lim := &limiter{limit: int32(cfg.Concurrency)}
	if cfg.MBPS > 0 {
		lim.rate = rate.NewLimiter(rate.Limit(cfg.MBPS*mb), cfg.MBPS*mb)
	}
	return lim
}

func (r *reader) Read(p []byte) (n int, err error) {
	if err = r.rate.WaitN(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.underlying.Read(p)
}

func (w *writer) Write(p []byte) (n int, err error) {
	if err = w.rate.WaitN(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.underlying.Write(p)
}

func (lim *limiter) Acquire() error {
	if lim.limit <= 0 {
		return nil
	}
	if atomic.AddInt32(&lim.running, 1) > lim.limit {
		atomic.AddInt32(&lim.running, -1)
		return ErrLimitExceeded
	}
	return nil
}

func (lim *limiter) Release() {
	if lim.limit <= 0 {
		return
	}
	atomic.AddInt32(&lim.running, -1)
}

func (lim *limiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if lim.rate == nil {
		return r
	}
	return &reader{ctx: ctx, rate: lim.rate, underlying: r}
}

func (lim *limiter) Writer(ctx context.Context, w io.Writer) io.Writer {
	if lim.rate == nil {
		return w
	}
	return &writer{ctx: ctx, rate: lim.rate, underlying: w}
}

func (lim *limiter) Running() int {
	return int(atomic.LoadInt32(&lim.running))
}
