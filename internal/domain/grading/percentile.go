package grading

// Band is a percentile range (Lower, Upper] mapped to a level.
// Percent bounds are integers so that band membership is decided with exact
// integer arithmetic.
type Band struct {
	Lower int   `json:"lower"`
	Upper int   `json:"upper"`
	Level Level `json:"level"`
}

var bands = []Band{
	{Lower: 0, Upper: 5, Level: LevelAPlus},
	{Lower: 5, Upper: 25, Level: LevelA},
	{Lower: 25, Upper: 50, Level: LevelBPlus},
	{Lower: 50, Upper: 75, Level: LevelB},
	{Lower: 75, Upper: 95, Level: LevelCPlus},
	{Lower: 95, Upper: 100, Level: LevelC},
}

// Bands returns the percentile band table, best level first.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// LevelForRank converts a 1-based rank inside a cohort of cohortSize into a
// level. Percentile is rank/cohortSize*100, bands are upper-bound inclusive.
//
// rank ≤ 0 and cohortSize ≤ 0 are degenerate: the lowest level is returned
// with ok=false and the caller must not treat the result as a calculated
// classification. A rank beyond the cohort is past the 100th percentile and
// lands in the last band.
func LevelForRank(rank, cohortSize int) (Level, bool) {
	if rank <= 0 || cohortSize <= 0 {
		return LevelC, false
	}
	// rank/size*100 <= upper  ⇔  rank*100 <= upper*size
	scaled := int64(rank) * 100
	size := int64(cohortSize)
	for _, b := range bands {
		if scaled <= int64(b.Upper)*size {
			return b.Level, true
		}
	}
	return LevelC, true
}

// RankPercentile returns rank/cohortSize*100, or 0 for degenerate input.
func RankPercentile(rank, cohortSize int) float64 {
	if rank <= 0 || cohortSize <= 0 {
		return 0
	}
	return float64(rank) / float64(cohortSize) * 100
}
