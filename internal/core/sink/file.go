// Package sink persists outcomes as they complete.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

var _ core.OutcomeSink = (*FileSink)(nil)

// FileSink writes one JSON object per line. Paths ending in .gz are gzipped.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	gz     *gzip.Writer
	buf    *bufio.Writer
	enc    *json.Encoder
	closed bool
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output %s: %w", path, err)
	}
	s := &FileSink{file: f}

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		s.gz = gzip.NewWriter(f)
		w = s.gz
	}
	s.buf = bufio.NewWriter(w)
	s.enc = json.NewEncoder(s.buf)
	return s, nil
}

func (s *FileSink) Write(_ context.Context, o *models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("file sink closed")
	}
	return s.enc.Encode(o)
}

// Close flushes buffered lines and the gzip trailer before closing the file.
func (s *FileSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	errs = append(errs, s.buf.Flush())
	if s.gz != nil {
		errs = append(errs, s.gz.Close())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}
