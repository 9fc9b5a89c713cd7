package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/markdave123-py/iatidocs/internal/models"
)

// outcomeRow is the column layout of document_outcomes.
type outcomeRow struct {
	URL           string
	RunID         string
	Title         sql.NullString
	DocumentDate  sql.NullString
	Format        sql.NullString
	Categories    string
	Languages     string
	Sources       string
	Fingerprint   sql.NullString
	Status        string
	FailureReason sql.NullString
	HTTPStatus    sql.NullInt64
	ExtractedText sql.NullString
	ExtractedMeta sql.NullString
	Cached        bool
	DurationMS    int64
	CompletedAt   time.Time
}

func toRow(o *models.Outcome) (outcomeRow, error) {
	row := outcomeRow{
		URL:           o.URL,
		RunID:         o.RunID,
		Title:         nullString(o.Title),
		DocumentDate:  nullString(o.Date),
		Format:        nullString(o.Format),
		Fingerprint:   nullString(o.Fingerprint),
		Status:        string(o.Status),
		FailureReason: sql.NullString{String: o.FailureReason, Valid: o.FailureReason != ""},
		HTTPStatus:    sql.NullInt64{Int64: int64(o.HTTPStatus), Valid: o.HTTPStatus != 0},
		Cached:        o.Cached,
		DurationMS:    o.DurationMS,
		CompletedAt:   o.CompletedAt,
	}

	var err error
	if row.Categories, err = jsonArray(o.Categories); err != nil {
		return row, err
	}
	if row.Languages, err = jsonArray(o.Languages); err != nil {
		return row, err
	}
	if row.Sources, err = jsonArray(o.Sources); err != nil {
		return row, err
	}

	if o.Extracted != nil {
		row.ExtractedText = sql.NullString{String: o.Extracted.Text, Valid: true}
		meta, err := json.Marshal(o.Extracted.Metadata)
		if err != nil {
			return row, err
		}
		row.ExtractedMeta = sql.NullString{String: string(meta), Valid: true}
	}
	return row, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func jsonArray(s models.StringSet) (string, error) {
	b, err := json.Marshal(s.Sorted())
	return string(b), err
}
