// Package domain holds the article records exchanged between scrapers, the ingestion consumer and the store.
package domain

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ArticleDraft is a scraped article that has not been persisted yet.
// PublisherURL is the natural key.
type ArticleDraft struct {
	ImageURL      string    `db:"image_url"       json:"image_url"`
	Title         string    `db:"title"           json:"title"`
	Description   string    `db:"description"     json:"description"`
	Content       string    `db:"content"         json:"content"`
	PublisherID   int       `db:"publisher_id"    json:"publisher_id"`
	PublisherURL  string    `db:"publisher_url"   json:"publisher_url"`
	ImportedAt    time.Time `db:"imported_at"     json:"imported_at"`
	CreatedAt     time.Time `db:"created_at"      json:"created_at"`
	CreatedAtUnix int64     `db:"created_at_unix" json:"created_at_unix"`
}

// Article is a stored draft plus its identifier and update time.
type Article struct {
	ID int64 `db:"id" json:"id"`
	ArticleDraft
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UnixSeconds returns floor(t) in seconds since the epoch.
func UnixSeconds(t time.Time) int64 {
	return t.Unix()
}

// SetCreatedAt updates CreatedAt and CreatedAtUnix together. The time is stored in UTC
// at microsecond precision, which is what Postgres keeps.
func (d *ArticleDraft) SetCreatedAt(t time.Time) {
	d.CreatedAt = t.UTC().Truncate(time.Microsecond)
	d.CreatedAtUnix = UnixSeconds(d.CreatedAt)
}

// Normalize trims identifiers, puts text into Unicode NFC and re-derives the time columns so
// the draft is safe to write.
func (d *ArticleDraft) Normalize() {
	d.ImageURL = strings.TrimSpace(d.ImageURL)
	d.Title = norm.NFC.String(strings.TrimSpace(d.Title))
	d.Description = norm.NFC.String(d.Description)
	d.Content = norm.NFC.String(d.Content)
	d.PublisherURL = strings.TrimSpace(d.PublisherURL)
	d.ImportedAt = d.ImportedAt.UTC().Truncate(time.Microsecond)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.ImportedAt
	}
	d.SetCreatedAt(d.CreatedAt)
}

// IsEmpty reports whether the draft carries no extracted data at all.
func (d ArticleDraft) IsEmpty() bool {
	return d.PublisherURL == "" &&
		d.ImageURL == "" &&
		d.Title == "" &&
		d.Description == "" &&
		d.Content == ""
}
