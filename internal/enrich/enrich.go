// Package enrich declares the optional collaborators that fill in cover art
// and release metadata after a record is stored. Enrichment is best effort:
// failures are logged and never reach the user.
package enrich

import (
	"context"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

// CoverArtFinder returns a cover image URL for a release, or "" when none
// is known.
type CoverArtFinder interface {
	FindCover(ctx context.Context, artist, title string) (string, error)
}

// MetadataEnricher suggests values for a record. Only fields that are empty
// on the stored record are taken from the suggestion.
type MetadataEnricher interface {
	Enrich(ctx context.Context, r models.Record) (models.Record, error)
}

const DefaultTimeout = 15 * time.Second

// Runner applies the configured collaborators. Either may be nil.
type Runner struct {
	Cover   CoverArtFinder
	Meta    MetadataEnricher
	Timeout time.Duration
	Log     logging.Logger
}

// Enabled reports whether any collaborator is configured.
func (r *Runner) Enabled() bool {
	return r != nil && (r.Cover != nil || r.Meta != nil)
}

// Run returns rec with blanks filled in and whether anything changed.
func (r *Runner) Run(ctx context.Context, rec models.Record) (models.Record, bool) {
	if !r.Enabled() {
		return rec, false
	}
	log := logging.OrNop(r.Log).With("component", "enrich", "id", rec.ID)
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := rec.Clone()
	changed := false

	if r.Meta != nil {
		s, err := r.Meta.Enrich(ctx, rec.Clone())
		if err != nil {
			log.Warn(ctx, "metadata enrichment failed", "error", err)
		} else {
			changed = fillBlanks(&out, s) || changed
		}
	}

	if r.Cover != nil && out.CoverURL == "" {
		url, err := r.Cover.FindCover(ctx, out.Artist, out.Title)
		switch {
		case err != nil:
			log.Warn(ctx, "cover lookup failed", "error", err)
		case url != "":
			out.CoverURL = url
			changed = true
		}
	}
	return out, changed
}

func fillBlanks(dst *models.Record, s models.Record) bool {
	changed := false
	set := func(field *string, v string) {
		if *field == "" && v != "" {
			*field = v
			changed = true
		}
	}
	set(&dst.Genre, s.Genre)
	set(&dst.Label, s.Label)
	set(&dst.Edition, s.Edition)
	set(&dst.CoverURL, s.CoverURL)
	if dst.Year == 0 && s.Year != 0 {
		dst.Year = s.Year
		changed = true
	}
	if len(dst.Tags) == 0 && len(s.Tags) > 0 {
		dst.Tags = models.NormalizeTags(s.Tags)
		changed = len(dst.Tags) > 0 || changed
	}
	return changed
}
