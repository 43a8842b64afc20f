package patch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	streamsearch "github.com/masroore/stream-search"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func newPatcher(t *testing.T, pattern, replacement string, opts ...Option) *Patcher {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := New(streamsearch.MustCompile([]byte(pattern)), []byte(replacement), opts...)
	require.NoError(t, err)
	return p
}

func TestNewLengthMismatch(t *testing.T) {
	pattern := streamsearch.MustCompile([]byte("abc"))

	_, err := New(pattern, []byte("ab"))
	require.ErrorIs(t, err, ErrLengthMismatch)

	p, err := New(pattern, []byte("ab"), WithForce(true), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestPatchFile(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		replacement string
		content     string
		opts        []Option
		wantOffsets []int64
		wantContent string
	}{
		{
			name:        "first occurrence only",
			pattern:     "ABC",
			replacement: "XYZ",
			content:     "xxABCyyABCzz",
			wantOffsets: []int64{2},
			wantContent: "xxXYZyyABCzz",
		},
		{
			name:        "all occurrences",
			pattern:     "ABC",
			replacement: "XYZ",
			content:     "xxABCyyABCzz",
			opts:        []Option{WithAll(true)},
			wantOffsets: []int64{2, 7},
			wantContent: "xxXYZyyXYZzz",
		},
		{
			name:        "adjacent self overlapping",
			pattern:     "AA",
			replacement: "BB",
			content:     "AAAA",
			opts:        []Option{WithAll(true)},
			wantOffsets: []int64{0, 2},
			wantContent: "BBBB",
		},
		{
			name:        "not found",
			pattern:     "ABC",
			replacement: "XYZ",
			content:     "abcabc",
			wantContent: "abcabc",
		},
		{
			name:        "dry run",
			pattern:     "ABC",
			replacement: "XYZ",
			content:     "xxABCyyABCzz",
			opts:        []Option{WithAll(true), WithDryRun(true)},
			wantOffsets: []int64{2, 7},
			wantContent: "xxABCyyABCzz",
		},
		{
			name:        "forced longer replacement",
			pattern:     "AB",
			replacement: "XYZ",
			content:     "ABABAB",
			opts:        []Option{WithAll(true), WithForce(true)},
			wantOffsets: []int64{0, 4},
			wantContent: "XYZBXYZ",
		},
		{
			name:        "forced shorter replacement",
			pattern:     "ABC",
			replacement: "Z",
			content:     "ABCABC",
			opts:        []Option{WithAll(true), WithForce(true)},
			wantOffsets: []int64{0, 3},
			wantContent: "ZBCZBC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "target.bin", tt.content)
			p := newPatcher(t, tt.pattern, tt.replacement, tt.opts...)

			res, err := p.PatchFile(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, path, res.Path)
			assert.Equal(t, tt.wantOffsets, res.Offsets)
			assert.Equal(t, len(tt.wantOffsets) > 0, res.Found())
			assert.Equal(t, tt.wantContent, readFile(t, path))
		})
	}
}

func TestPatchFileAcrossBufferBoundary(t *testing.T) {
	marker := "Optimized by JPEGmini 3.9.2.5L Internal 0x"
	replacement := "Optimized by JPEGCrunchr 1.0.1            "
	require.Len(t, replacement, len(marker))

	var content bytes.Buffer
	content.WriteString(strings.Repeat("\xff", 4090))
	content.WriteString(marker)
	content.WriteString(strings.Repeat("\x00", 9000))
	content.WriteString(marker)

	path := writeFile(t, t.TempDir(), "1.jpg", content.String())
	p := newPatcher(t, marker, replacement, WithAll(true))

	res, err := p.PatchFile(context.Background(), path)
	require.NoError(t, err)

	second := int64(4090 + len(marker) + 9000)
	assert.Equal(t, []int64{4090, second}, res.Offsets)

	got := readFile(t, path)
	assert.Len(t, got, content.Len())
	assert.Equal(t, replacement, got[4090:4090+len(marker)])
	assert.Equal(t, replacement, got[second:])
	assert.NotContains(t, got, marker)
}

func TestPatchFileCanceled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "target.bin", "xxABC")
	p := newPatcher(t, "ABC", "XYZ")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PatchFile(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "xxABC", readFile(t, path))
}

func TestPatchFilesIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "1.jpg", "..ABC..")
	second := writeFile(t, dir, "3.jpg", "ABC")
	missing := filepath.Join(dir, "2.jpg")

	p := newPatcher(t, "ABC", "XYZ")
	results, err := p.PatchFiles(context.Background(), []string{first, missing, second})
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.Len(t, results, 3)
	assert.Equal(t, []int64{2}, results[0].Offsets)
	assert.False(t, results[1].Found())
	assert.ErrorIs(t, results[1].Err, os.ErrNotExist)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, []int64{0}, results[2].Offsets)

	assert.Equal(t, "..XYZ..", readFile(t, first))
	assert.Equal(t, "XYZ", readFile(t, second))
}

func TestPatchFilesFailFast(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "1.jpg")
	good := writeFile(t, dir, "2.jpg", "ABC")

	p := newPatcher(t, "ABC", "XYZ", WithFailFast(true), WithJobs(1))
	_, err := p.PatchFiles(context.Background(), []string{missing, good})
	require.ErrorIs(t, err, os.ErrNotExist)

	assert.Equal(t, "ABC", readFile(t, good))
}

func TestPatchFilesConcurrent(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		paths = append(paths, writeFile(t, dir, name+".bin", name+"-needle-"+name))
	}

	p := newPatcher(t, "needle", "NEEDLE", WithJobs(4))
	results, err := p.PatchFiles(context.Background(), paths)
	require.NoError(t, err)

	for i, res := range results {
		assert.Equal(t, paths[i], res.Path)
		assert.Equal(t, []int64{2}, res.Offsets)
		assert.Contains(t, readFile(t, res.Path), "-NEEDLE-")
	}
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "")
	b := writeFile(t, dir, "b.jpg", "")
	writeFile(t, dir, "c.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))
	missing := filepath.Join(dir, "missing.jpg")

	files, err := ExpandFiles([]string{
		filepath.Join(dir, "*.jpg"),
		a,
		missing,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, missing}, files)

	_, err = ExpandFiles([]string{"["})
	require.ErrorIs(t, err, filepath.ErrBadPattern)
}
