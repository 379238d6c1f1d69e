// Package grading resolves a canonical letter grade for every score record.
//
// Resolution follows a strict fallback policy:
//
//	imported token (normalized) → rank percentile in cohort → default C
//
// The package is pure: no I/O, no shared state.
package grading

// ══════════════════════════════════════════════════════════════════════════════
// CANONICAL LEVEL
// ══════════════════════════════════════════════════════════════════════════════

// Level is one of the six canonical grade levels.
type Level string

const (
	LevelAPlus Level = "A+"
	LevelA     Level = "A"
	LevelBPlus Level = "B+"
	LevelB     Level = "B"
	LevelCPlus Level = "C+"
	LevelC     Level = "C"
)

// Levels returns all canonical levels from best to worst.
func Levels() []Level {
	return []Level{LevelAPlus, LevelA, LevelBPlus, LevelB, LevelCPlus, LevelC}
}

// Ordinal returns the position of the level, 0 for A+ and 5 for C.
// Unknown levels return -1.
func (l Level) Ordinal() int {
	for i, lv := range Levels() {
		if lv == l {
			return i
		}
	}
	return -1
}

// IsValid reports whether l is a canonical level.
func (l Level) IsValid() bool {
	return l.Ordinal() >= 0
}

// Better reports whether l is strictly better than other.
func (l Level) Better(other Level) bool {
	return l.Ordinal() < other.Ordinal()
}

func (l Level) String() string {
	return string(l)
}

// ══════════════════════════════════════════════════════════════════════════════
// SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// Source tells where a resolved level came from.
type Source string

const (
	// SourceImported - grade token shipped with the data was recognised.
	SourceImported Source = "imported"

	// SourceCalculated - level derived from rank percentile within the cohort.
	SourceCalculated Source = "calculated"

	// SourceDefault - nothing usable, lowest level assigned.
	SourceDefault Source = "default"
)
