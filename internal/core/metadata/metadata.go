// Package metadata loads bulk activity metadata exported by the IATI datastore.
package metadata

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

type envelope struct {
	Response *struct {
		Docs []models.ActivityRecord `json:"docs"`
	} `json:"response"`
}

// Load reads a metadata file from disk. See Decode.
func Load(path string) ([]models.ActivityRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata %s: %w", path, err)
	}
	defer f.Close()

	recs, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	return recs, nil
}

// Decode accepts either the raw search response {"response":{"docs":[...]}}
// or the bare docs array.
func Decode(r io.Reader) ([]models.ActivityRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", core.ErrMalformedRecord)
	}

	if raw[0] == '[' {
		var recs []models.ActivityRecord
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
		}
		return recs, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedRecord, err)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("%w: missing response.docs", core.ErrMalformedRecord)
	}
	return env.Response.Docs, nil
}

// Sample returns n records picked without replacement. The same seed yields
// the same subset. n <= 0 or n >= len(records) returns records unchanged.
func Sample(records []models.ActivityRecord, n int, seed int64) []models.ActivityRecord {
	if n <= 0 || n >= len(records) {
		return records
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(records))[:n]
	out := make([]models.ActivityRecord, n)
	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}
