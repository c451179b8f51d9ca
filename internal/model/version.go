package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Source is a logical document identity (e.g. "us/statute/7/51"),
// independent of any retrieved copy.
type Source struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Jurisdiction string    `json:"jurisdiction"`
	DocType      string    `json:"doc_type"`
	SourceURL    string    `json:"source_url,omitempty"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the registrar-supplied fields.
func (s *Source) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Path, validation.Required, validation.Length(1, 512)),
		validation.Field(&s.Jurisdiction, validation.Required, validation.Length(1, 32)),
		validation.Field(&s.DocType, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: source %q: %v", ErrInvalidInput, s.Path, err)
	}
	return nil
}

// Version is one retrieved, hashed, time-bounded copy of a Source.
//
// The validity window is [AppliesFromYear, AppliesToYear]; a nil bound is
// open. Superseded marks a non-current version whose end year was unknown
// when a newer version replaced it.
type Version struct {
	ID              string     `json:"id"`
	SourceID        string     `json:"source_id"`
	ContentHash     string     `json:"content_hash"`
	StorageKey      string     `json:"storage_key,omitempty"`
	FileSizeBytes   int64      `json:"file_size_bytes,omitempty"`
	MimeType        string     `json:"mime_type,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	RetrievedAt     time.Time  `json:"retrieved_at"`
	AppliesFromYear *int       `json:"applies_from_year,omitempty"`
	AppliesToYear   *int       `json:"applies_to_year,omitempty"`
	IsCurrent       bool       `json:"is_current"`
	Superseded      bool       `json:"superseded,omitempty"`
}

// Covers reports whether year falls inside the version's validity window.
func (v *Version) Covers(year int) bool {
	if v.AppliesFromYear != nil && year < *v.AppliesFromYear {
		return false
	}
	if v.AppliesToYear != nil && year > *v.AppliesToYear {
		return false
	}
	return true
}

// Validate checks window consistency and the current/bounded invariant.
func (v *Version) Validate() error {
	err := validation.ValidateStruct(v,
		validation.Field(&v.SourceID, validation.Required),
		validation.Field(&v.ContentHash, validation.Required),
		validation.Field(&v.RetrievedAt, validation.Required),
		validation.Field(&v.FileSizeBytes, validation.Min(int64(0))),
		validation.Field(&v.AppliesToYear,
			validation.By(func(interface{}) error {
				if v.AppliesFromYear != nil && v.AppliesToYear != nil && *v.AppliesToYear < *v.AppliesFromYear {
					return errors.New("must not precede applies_from_year")
				}
				return nil
			}),
			validation.When(!v.IsCurrent && !v.Superseded,
				validation.NotNil.Error("is required for a non-current version unless superseded")),
		),
	)
	if err != nil {
		return fmt.Errorf("%w: version %s: %v", ErrInvalidInput, v.ID, err)
	}
	return nil
}

// Year returns a pointer to y, for building windows.
func Year(y int) *int {
	return &y
}

// ParseAsOf reads a point-in-time argument: YYYY-MM-DD or a bare year,
// which means January 1 of that year. Empty input yields nil.
func ParseAsOf(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	if y, err := strconv.Atoi(raw); err == nil && y > 0 {
		t := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		return &t, nil
	}
	return nil, fmt.Errorf("%w: as_of must be YYYY-MM-DD or a year, got %q", ErrInvalidInput, raw)
}
