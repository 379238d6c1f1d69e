package score

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA ACCESS CONTRACT
// The engine never fetches data itself; a Provider is invoked once before
// the core runs. Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Filter narrows the records returned by a Provider. Zero values mean
// "no restriction".
type Filter struct {
	ExamIDs    []string  `json:"exam_ids,omitempty"`
	ClassNames []string  `json:"class_names,omitempty"`
	Subjects   []string  `json:"subjects,omitempty"`
	From       time.Time `json:"from,omitempty"`
	To         time.Time `json:"to,omitempty"`
}

// Matches reports whether r satisfies every set criterion.
// From and To are inclusive.
func (f Filter) Matches(r Record) bool {
	if len(f.ExamIDs) > 0 && !contains(f.ExamIDs, r.ExamID) {
		return false
	}
	if len(f.ClassNames) > 0 && !contains(f.ClassNames, r.ClassName) {
		return false
	}
	if len(f.Subjects) > 0 && !contains(f.Subjects, r.Subject) {
		return false
	}
	if !f.From.IsZero() && r.ExamDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.ExamDate.After(f.To) {
		return false
	}
	return true
}

// Provider fetches score records matching a filter.
type Provider interface {
	// FetchScores returns all records matching the filter. An empty result
	// is not an error.
	FetchScores(ctx context.Context, filter Filter) ([]Record, error)
}

// Identified is implemented by providers that can name the record set they
// serve. Two providers with different identities never share cached
// results.
type Identified interface {
	SourceID() string
}

// SourceID returns the identity of p, or "" when p does not report one.
func SourceID(p Provider) string {
	if id, ok := p.(Identified); ok {
		return id.SourceID()
	}
	return ""
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, filter Filter) ([]Record, error)

// FetchScores calls fn.
func (fn ProviderFunc) FetchScores(ctx context.Context, filter Filter) ([]Record, error) {
	return fn(ctx, filter)
}

// StaticProvider serves a fixed in-memory record set, applying filters in
// process. Used by the CLI for file datasets and by tests.
type StaticProvider struct {
	records []Record
	id      string
}

// NewStaticProvider creates a provider over a copy of records.
func NewStaticProvider(records []Record) *StaticProvider {
	cp := make([]Record, len(records))
	copy(cp, records)
	return &StaticProvider{records: cp, id: contentID(cp)}
}

// SourceID is a digest of the record contents, so equal datasets share an
// identity wherever they were loaded from.
func (p *StaticProvider) SourceID() string {
	return p.id
}

func contentID(records []Record) string {
	h, _ := blake2b.New256(nil)
	for _, r := range records {
		fmt.Fprintf(h, "%q %q %q %q %q %q %q %s %d %g\n",
			r.StudentID, r.StudentName, r.CohortKey, r.Subject, r.ClassName, r.ExamID,
			r.ImportedGrade, r.ExamDate.UTC().Format(time.RFC3339Nano), r.RankInCohort, r.Score)
	}
	return "static:" + hex.EncodeToString(h.Sum(nil)[:16])
}

// FetchScores returns the matching records in their original order.
func (p *StaticProvider) FetchScores(ctx context.Context, filter Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(p.records))
	for _, r := range p.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
