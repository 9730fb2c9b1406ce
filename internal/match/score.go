package match

import "time"

// Weighted components of the compatibility score. Rating proximity matters
// most, then level, then language overlap; the wait bonus keeps long-waiting
// pairs from being passed over forever.
const (
	weightRating   = 0.4
	weightLevel    = 0.3
	weightLanguage = 0.2
	weightWait     = 0.1

	ratingWindow   = 400.0
	levelWindow    = 10.0
	waitSaturation = 60 * time.Second
)

// Candidate is one matchmaking candidate as seen by the scorer and the queue.
type Candidate struct {
	ID         string
	Name       string
	Level      int
	Rating     int
	Languages  []string
	JoinedAt   time.Time
	BattleType string
}

// Score computes the compatibility of two candidates as a value in [0, 1].
// It is symmetric: Score(a, b, t) == Score(b, a, t). Pure ranking only —
// the queue decides whether a score is good enough to match.
func Score(a, b Candidate, now time.Time) float64 {
	ratingDiff := absInt(a.Rating - b.Rating)
	ratingScore := max(0, 1-float64(ratingDiff)/ratingWindow)

	levelDiff := absInt(a.Level - b.Level)
	levelScore := max(0, 1-float64(levelDiff)/levelWindow)

	langScore := languageOverlap(a.Languages, b.Languages)

	avgWait := (now.Sub(a.JoinedAt) + now.Sub(b.JoinedAt)) / 2
	waitScore := min(1, float64(avgWait)/float64(waitSaturation))

	return weightRating*ratingScore +
		weightLevel*levelScore +
		weightLanguage*langScore +
		weightWait*waitScore
}

// languageOverlap is |a ∩ b| / max(|a|, |b|). Two empty preference sets
// share no language, so the overlap is 0, not 1.
func languageOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, l := range a {
		set[l] = true
	}
	shared := 0
	for _, l := range b {
		if set[l] {
			shared++
			delete(set, l) // don't double count duplicates
		}
	}
	return float64(shared) / float64(max(len(a), len(b)))
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
