package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/core/fetcher"
	"github.com/markdave123-py/iatidocs/internal/core/fingerprint"
	"github.com/markdave123-py/iatidocs/internal/models"
)

type fakeFetcher struct {
	delay   time.Duration
	block   bool
	started chan struct{}
	fail    map[string]int

	mu      sync.Mutex
	calls   map[string]int
	current int
	peak    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, d models.Descriptor) *models.FetchResult {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[d.URL]++
	f.current++
	if f.current > f.peak {
		f.peak = f.current
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.current--
		f.mu.Unlock()
	}()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block {
		<-ctx.Done()
		return &models.FetchResult{Descriptor: d, Err: &core.FetchError{URL: d.URL, Err: ctx.Err()}}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if code, ok := f.fail[d.URL]; ok {
		return &models.FetchResult{Descriptor: d, StatusCode: code, Err: &core.FetchError{URL: d.URL, StatusCode: code}}
	}
	return &models.FetchResult{Descriptor: d, StatusCode: http.StatusOK, Body: []byte("body of " + d.URL), ContentType: "text/plain"}
}

type fakeExtractor struct {
	fail  map[string]bool
	calls atomic.Int32
}

func (e *fakeExtractor) Extract(ctx context.Context, body []byte, contentType string) (*models.ExtractedRecord, error) {
	e.calls.Add(1)
	if e.fail[string(body)] {
		return nil, errors.New("unsupported document")
	}
	return &models.ExtractedRecord{Metadata: map[string]string{"Content-Type": contentType}, Text: strings.ToUpper(string(body))}, nil
}

type memorySink struct {
	mu     sync.Mutex
	writes map[string]int
}

func (s *memorySink) Write(ctx context.Context, o *models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = map[string]int{}
	}
	s.writes[o.URL]++
	return nil
}

func (s *memorySink) Close(ctx context.Context) error { return nil }

type memoryCache struct {
	mu   sync.Mutex
	recs map[string]*models.ExtractedRecord
}

func (c *memoryCache) Get(ctx context.Context, fp string) (*models.ExtractedRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.recs[fp]
	return r, ok, nil
}

func (c *memoryCache) Put(ctx context.Context, fp string, rec *models.ExtractedRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recs == nil {
		c.recs = map[string]*models.ExtractedRecord{}
	}
	c.recs[fp] = rec
	return nil
}

type memoryObjects struct {
	mu      sync.Mutex
	uploads map[string]int
}

func (m *memoryObjects) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploads == nil {
		m.uploads = map[string]int{}
	}
	m.uploads[bucket+"/"+key]++
	return "s3://" + bucket + "/" + key, nil
}

func (m *memoryObjects) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads[bucket+"/"+key] > 0, nil
}

func descriptors(urls ...string) []models.Descriptor {
	out := make([]models.Descriptor, len(urls))
	for i, u := range urls {
		out[i] = models.Descriptor{URL: u, Categories: models.NewStringSet("x")}
	}
	return out
}

func fp() core.Fingerprinter {
	f, _ := fingerprint.New("sha224")
	return f
}

func TestRun_TwoDescriptorsSucceed(t *testing.T) {
	sink := &memorySink{}
	ing := NewDocumentIngestor(&fakeFetcher{}, fp(), &fakeExtractor{}, nil, nil, sink, &IngestConfig{Workers: 2})

	outcomes, err := ing.Run(context.Background(), descriptors("a", "b"))
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	for _, url := range []string{"a", "b"} {
		o := outcomes[url]
		require.NotNil(t, o, url)
		assert.Equal(t, models.StatusSuccess, o.Status)
		require.NotNil(t, o.Fingerprint)
		assert.Equal(t, fp().Sum([]byte("body of "+url)), *o.Fingerprint)
		require.NotNil(t, o.Extracted)
		assert.Equal(t, strings.ToUpper("body of "+url), o.Extracted.Text)
		assert.Empty(t, o.FailureReason)
		assert.Equal(t, ing.RunID(), o.RunID)
		assert.Equal(t, []string{"x"}, o.Categories.Sorted())
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, sink.writes)
}

func TestRun_HTTP404BecomesFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := fetcher.New(fetcher.NewHTTPClient(time.Second, 4), "", 0)
	ext := &fakeExtractor{}
	ing := NewDocumentIngestor(f, fp(), ext, nil, nil, nil, &IngestConfig{Workers: 4})

	url := srv.URL + "/missing.pdf"
	outcomes, err := ing.Run(context.Background(), descriptors(url))
	require.NoError(t, err)

	o := outcomes[url]
	require.NotNil(t, o)
	assert.Equal(t, models.StatusFailure, o.Status)
	assert.Contains(t, o.FailureReason, "404")
	assert.Equal(t, http.StatusNotFound, o.HTTPStatus)
	assert.Nil(t, o.Extracted)
	assert.Nil(t, o.Fingerprint)
	assert.Equal(t, int32(1), hits.Load())
	assert.Zero(t, ext.calls.Load())
}

func TestRun_ExtractionFailureIsIsolated(t *testing.T) {
	ext := &fakeExtractor{fail: map[string]bool{"body of bad": true}}
	ing := NewDocumentIngestor(&fakeFetcher{}, fp(), ext, nil, nil, nil, &IngestConfig{Workers: 2})

	outcomes, err := ing.Run(context.Background(), descriptors("good", "bad", "also-good"))
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	bad := outcomes["bad"]
	assert.Equal(t, models.StatusFailure, bad.Status)
	assert.True(t, strings.HasPrefix(bad.FailureReason, "extract: "), bad.FailureReason)
	assert.Contains(t, bad.FailureReason, "unsupported document")
	assert.NotNil(t, bad.Fingerprint)
	assert.Nil(t, bad.Extracted)

	assert.Equal(t, models.StatusSuccess, outcomes["good"].Status)
	assert.Equal(t, models.StatusSuccess, outcomes["also-good"].Status)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	var urls []string
	for i := 0; i < 24; i++ {
		urls = append(urls, fmt.Sprintf("u%02d", i))
	}
	f := &fakeFetcher{delay: 15 * time.Millisecond}
	ing := NewDocumentIngestor(f, fp(), &fakeExtractor{}, nil, nil, nil, &IngestConfig{Workers: 3, QueueSize: 2})

	outcomes, err := ing.Run(context.Background(), descriptors(urls...))
	require.NoError(t, err)
	assert.Len(t, outcomes, len(urls))
	assert.LessOrEqual(t, f.peak, 3)
	assert.GreaterOrEqual(t, f.peak, 1)
	for _, n := range f.calls {
		assert.Equal(t, 1, n)
	}
}

func TestRun_MixedOutcomesCountMatchesInput(t *testing.T) {
	f := &fakeFetcher{fail: map[string]int{"b": 500, "d": 403}}
	ext := &fakeExtractor{fail: map[string]bool{"body of c": true}}
	sink := &memorySink{}
	ing := NewDocumentIngestor(f, fp(), ext, nil, nil, sink, &IngestConfig{Workers: 8})

	in := descriptors("a", "b", "c", "d", "e")
	outcomes, err := ing.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, outcomes, len(in))
	assert.Len(t, sink.writes, len(in))

	p := ing.Progress()
	assert.Equal(t, int64(5), p.Total)
	assert.Equal(t, int64(5), p.Completed)
	assert.Equal(t, int64(2), p.Succeeded)
	assert.Equal(t, int64(3), p.Failed)
	assert.Zero(t, p.InFlight)
	assert.True(t, p.Done)

	listed := ing.Outcomes()
	require.Len(t, listed, 5)
	assert.Equal(t, "a", listed[0].URL)
	assert.Equal(t, "e", listed[4].URL)

	assert.Contains(t, outcomes["b"].FailureReason, "500")
	assert.Contains(t, outcomes["d"].FailureReason, "403")
}

func TestRun_Cancellation(t *testing.T) {
	var urls []string
	for i := 0; i < 10; i++ {
		urls = append(urls, fmt.Sprintf("u%d", i))
	}
	f := &fakeFetcher{block: true, started: make(chan struct{}, 1)}
	sink := &memorySink{}
	ing := NewDocumentIngestor(f, fp(), &fakeExtractor{}, nil, nil, sink, &IngestConfig{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.started
		cancel()
	}()

	outcomes, err := ing.Run(ctx, descriptors(urls...))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCancelled)
	require.Len(t, outcomes, len(urls))
	assert.Len(t, sink.writes, len(urls))

	for url, o := range outcomes {
		assert.Equal(t, models.StatusFailure, o.Status, url)
		assert.True(t, strings.HasPrefix(o.FailureReason, "cancelled"), o.FailureReason)
		assert.Nil(t, o.Extracted)
	}
	assert.LessOrEqual(t, f.peak, 2)
}

func TestRun_CacheHitSkipsExtraction(t *testing.T) {
	cache := &memoryCache{}
	cached := &models.ExtractedRecord{Text: "from cache", Metadata: map[string]string{}}
	require.NoError(t, cache.Put(context.Background(), fp().Sum([]byte("body of a")), cached))

	ext := &fakeExtractor{}
	ing := NewDocumentIngestor(&fakeFetcher{}, fp(), ext, cache, nil, nil, &IngestConfig{Workers: 1})

	outcomes, err := ing.Run(context.Background(), descriptors("a", "b"))
	require.NoError(t, err)

	assert.True(t, outcomes["a"].Cached)
	assert.Equal(t, "from cache", outcomes["a"].Extracted.Text)
	assert.False(t, outcomes["b"].Cached)
	assert.Equal(t, int32(1), ext.calls.Load())

	_, ok, _ := cache.Get(context.Background(), fp().Sum([]byte("body of b")))
	assert.True(t, ok, "fresh extraction should populate the cache")
}

func TestRun_ArchivesRawBytesOncePerFingerprint(t *testing.T) {
	objs := &memoryObjects{}
	ing := NewDocumentIngestor(&fakeFetcher{}, fp(), &fakeExtractor{}, nil, objs, nil, &IngestConfig{Workers: 1, Bucket: "raw"})

	_, err := ing.Run(context.Background(), descriptors("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, 1, objs.uploads["raw/documents/"+fp().Sum([]byte("body of a"))])
	assert.Equal(t, 1, objs.uploads["raw/documents/"+fp().Sum([]byte("body of b"))])
}

func TestRun_RejectsBadInput(t *testing.T) {
	ing := NewDocumentIngestor(&fakeFetcher{}, fp(), &fakeExtractor{}, nil, nil, nil, &IngestConfig{Workers: 2})
	_, err := ing.Run(context.Background(), descriptors("a", "a"))
	assert.ErrorContains(t, err, "duplicate")

	ing = NewDocumentIngestor(&fakeFetcher{}, fp(), &fakeExtractor{}, nil, nil, nil, &IngestConfig{Workers: 0})
	_, err = ing.Run(context.Background(), descriptors("a"))
	assert.ErrorContains(t, err, "at least 1")
}

func TestRun_OnlyOnce(t *testing.T) {
	ing := NewDocumentIngestor(&fakeFetcher{}, fp(), &fakeExtractor{}, nil, nil, nil, &IngestConfig{Workers: 1})
	_, err := ing.Run(context.Background(), nil)
	require.NoError(t, err)
	_, err = ing.Run(context.Background(), nil)
	assert.Error(t, err)
}
