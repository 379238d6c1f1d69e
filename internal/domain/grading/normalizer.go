package grading

import (
	"strings"
	"unicode"
)

// vocabulary maps folded tokens to canonical levels.
// Keys are upper-case with whitespace removed and full-width plus folded.
var vocabulary = map[string]Level{
	// Latin letters
	"A+": LevelAPlus,
	"A":  LevelA,
	"B+": LevelBPlus,
	"B":  LevelB,
	"C+": LevelCPlus,
	"C":  LevelC,

	// 等级评语
	"优":   LevelAPlus,
	"优秀":  LevelAPlus,
	"良":   LevelA,
	"良好":  LevelA,
	"中等":  LevelB,
	"中":   LevelB,
	"及格":  LevelCPlus,
	"不及格": LevelC,
	"差":   LevelC,

	// 甲乙丙丁
	"甲": LevelAPlus,
	"乙": LevelA,
	"丙": LevelB,
	"丁": LevelC,
}

// Normalize maps a heterogeneous grade token to a canonical level.
// Matching ignores case and whitespace; the full-width plus sign "＋" is
// accepted. Unknown or empty tokens return ("", false).
func Normalize(token string) (Level, bool) {
	key := fold(token)
	if key == "" {
		return "", false
	}
	level, ok := vocabulary[key]
	return level, ok
}

// fold produces the lookup key for a token.
func fold(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		switch {
		case unicode.IsSpace(r):
			continue
		case r == '＋':
			b.WriteRune('+')
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Vocabulary returns a copy of the recognised token table.
func Vocabulary() map[string]Level {
	out := make(map[string]Level, len(vocabulary))
	for k, v := range vocabulary {
		out[k] = v
	}
	return out
}
