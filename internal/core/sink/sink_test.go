package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/iatidocs/internal/models"
)

func outcome(url string) *models.Outcome {
	return &models.Outcome{
		Descriptor: models.Descriptor{URL: url, Categories: models.NewStringSet("b", "a")},
		Status:     models.StatusSuccess,
		Extracted:  &models.ExtractedRecord{Text: "t"},
	}
}

func readLines(t *testing.T, f *os.File, gz bool) []map[string]any {
	t.Helper()
	var sc *bufio.Scanner
	if gz {
		zr, err := gzip.NewReader(f)
		require.NoError(t, err)
		sc = bufio.NewScanner(zr)
	} else {
		sc = bufio.NewScanner(f)
	}
	var out []map[string]any
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestFileSink_NDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, outcome("a")))
	require.NoError(t, s.Write(ctx, outcome("b")))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.Error(t, s.Write(ctx, outcome("c")))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := readLines(t, f, false)
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0]["url"])
	assert.Equal(t, []any{"a", "b"}, lines[0]["categories"])
	assert.Equal(t, "success", lines[1]["status"])
}

func TestFileSink_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.gz")
	s, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), outcome("a")))
	require.NoError(t, s.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := readLines(t, f, true)
	require.Len(t, lines, 1)
	assert.Equal(t, "a", lines[0]["url"])
}

type recordingSink struct {
	urls   []string
	err    error
	closed bool
}

func (r *recordingSink) Write(_ context.Context, o *models.Outcome) error {
	r.urls = append(r.urls, o.URL)
	return r.err
}

func (r *recordingSink) Close(context.Context) error {
	r.closed = true
	return nil
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	good := &recordingSink{}
	bad := &recordingSink{err: boom}
	m := Multi{{Name: "bad", Sink: bad}, {Name: "good", Sink: good}}

	err := m.Write(context.Background(), outcome("a"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, good.urls)
	assert.Equal(t, []string{"a"}, bad.urls)

	require.NoError(t, m.Close(context.Background()))
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestToDoc(t *testing.T) {
	d := toDoc(outcome("a"))
	assert.Equal(t, []string{"a", "b"}, d.Categories)
	assert.Equal(t, []string{}, d.Languages)
	assert.Equal(t, "success", d.Status)
}
