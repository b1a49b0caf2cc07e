package sentiment

import "strings"

// Label is a coarse sentiment bucket for a message body.
type Label string

const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
)

var positiveWords = []string{
	"thank", "great", "good", "excellent", "awesome", "perfect",
	"love", "happy", "wonderful", "amazing", "appreciate", "nice", "helpful",
}

var negativeWords = []string{
	"problem", "issue", "bad", "terrible", "awful", "broken",
	"wrong", "hate", "angry", "disappointed", "refund", "cancel", "complaint",
}

// Classify buckets text by counting keyword occurrences. The stronger side
// wins; ties (including zero hits) are neutral. Scores are fixed: 0.7 for a
// positive or negative verdict, 0.5 for neutral. Stateless and safe for
// concurrent use.
func Classify(text string) (Label, float64) {
	lower := strings.ToLower(text)

	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}

	switch {
	case neg > pos:
		return Negative, 0.7
	case pos > neg:
		return Positive, 0.7
	default:
		return Neutral, 0.5
	}
}
