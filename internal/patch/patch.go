// Package patch rewrites occurrences of a compiled pattern inside files in
// place.
package patch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	streamsearch "github.com/masroore/stream-search"
)

// ErrLengthMismatch is returned by New when the replacement and the pattern
// differ in length and WithForce was not given.
var ErrLengthMismatch = errors.New("patch: replacement length differs from pattern length")

// Result describes what happened to one file.
type Result struct {
	Path string
	// Offsets holds the start offset of every match, in file order.
	Offsets []int64
	DryRun  bool
	// Err is set by PatchFiles when the file could not be patched.
	Err error
}

// Found reports whether the pattern occurred in the file at all.
func (r Result) Found() bool {
	return len(r.Offsets) > 0
}

// Patcher overwrites matches of a pattern with a replacement.
type Patcher struct {
	pattern     streamsearch.Searcher
	replacement []byte

	logger   *zap.Logger
	dryRun   bool
	all      bool
	force    bool
	failFast bool
	jobs     int
}

// Option configures a Patcher.
type Option func(*Patcher)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Patcher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDryRun reports matches without writing.
func WithDryRun(dryRun bool) Option {
	return func(p *Patcher) { p.dryRun = dryRun }
}

// WithAll replaces every occurrence instead of only the first one.
func WithAll(all bool) Option {
	return func(p *Patcher) { p.all = all }
}

// WithForce accepts a replacement whose length differs from the pattern.
// Bytes following a match are then overwritten (longer replacement) or left
// in place (shorter replacement).
func WithForce(force bool) Option {
	return func(p *Patcher) { p.force = force }
}

// WithFailFast stops the batch at the first file that fails. By default every
// file is attempted and the failures are returned together.
func WithFailFast(failFast bool) Option {
	return func(p *Patcher) { p.failFast = failFast }
}

// WithJobs sets how many files are patched concurrently.
func WithJobs(jobs int) Option {
	return func(p *Patcher) {
		if jobs > 0 {
			p.jobs = jobs
		}
	}
}

// New returns a Patcher replacing pattern with replacement. The pattern may
// be shared with other goroutines.
func New(pattern streamsearch.Searcher, replacement []byte, opts ...Option) (*Patcher, error) {
	p := &Patcher{
		pattern:     pattern,
		replacement: append([]byte(nil), replacement...),
		logger:      zap.NewNop(),
		jobs:        1,
	}
	for _, opt := range opts {
		opt(p)
	}

	if len(replacement) != pattern.Len() {
		if !p.force {
			return nil, fmt.Errorf("%w: pattern %d bytes, replacement %d bytes",
				ErrLengthMismatch, pattern.Len(), len(replacement))
		}
		p.logger.Warn("replacement length differs from pattern length",
			zap.Int("pattern_len", pattern.Len()),
			zap.Int("replacement_len", len(replacement)))
	}

	return p, nil
}

// PatchFile searches path and overwrites the first match, or every match
// with WithAll.
func (p *Patcher) PatchFile(ctx context.Context, path string) (Result, error) {
	res := Result{Path: path, DryRun: p.dryRun}
	log := p.logger.With(zap.String("path", path))

	flag := os.O_RDWR
	if p.dryRun {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", path, err)
	}

	res.Offsets, err = p.patch(ctx, file, log)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	if err != nil {
		return res, err
	}

	if !res.Found() {
		log.Debug("pattern not found")
	}
	return res, nil
}

func (p *Patcher) patch(ctx context.Context, file *os.File, log *zap.Logger) ([]int64, error) {
	plen := int64(p.pattern.Len())
	reader := bufio.NewReaderSize(file, streamsearch.DefaultBufferSize(p.pattern.Len()))

	var offsets []int64
	var base int64

	for {
		if err := ctx.Err(); err != nil {
			return offsets, err
		}

		end, found, err := p.pattern.Search(reader)
		if err != nil {
			return offsets, fmt.Errorf("search %s: %w", file.Name(), err)
		}
		if !found {
			return offsets, nil
		}

		start := base + end - plen
		offsets = append(offsets, start)
		log.Debug("match", zap.Int64("offset", start))

		if p.dryRun {
			base += end
		} else {
			if _, err := file.WriteAt(p.replacement, start); err != nil {
				return offsets, fmt.Errorf("write %s at %d: %w", file.Name(), start, err)
			}

			// Resume after the replacement so that neither the written bytes
			// nor stale buffered data are searched again.
			base = start + int64(len(p.replacement))
			if base < start+plen {
				base = start + plen
			}
			if _, err := file.Seek(base, io.SeekStart); err != nil {
				return offsets, fmt.Errorf("seek %s: %w", file.Name(), err)
			}
			reader.Reset(file)
		}

		if !p.all {
			return offsets, nil
		}
	}
}

// PatchFiles patches every path. Results are returned in the order of paths;
// the Result of a failed file lists the matches handled before the failure.
// Without WithFailFast all files are attempted and the returned error
// combines every failure (see multierr.Errors).
func (p *Patcher) PatchFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.jobs)

	for i, path := range paths {
		i, path := i, path // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Path: path, DryRun: p.dryRun, Err: err}
				errs[i] = err
				return nil
			}

			res, err := p.PatchFile(gctx, path)
			res.Err = err
			results[i] = res
			if err != nil {
				p.logger.Error("patch failed", zap.String("path", path), zap.Error(err))
				errs[i] = err
				if p.failFast {
					return err
				}
				return nil
			}

			p.logger.Info("patched",
				zap.String("path", path),
				zap.Int("matches", len(res.Offsets)),
				zap.Bool("dry_run", res.DryRun))
			return nil
		})
	}

	if err := g.Wait(); err != nil && p.failFast {
		return results, err
	}
	return results, multierr.Combine(errs...)
}
