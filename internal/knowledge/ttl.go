package knowledge

import (
	"regexp"
	"time"
)

// Questions and answers about pricing or commercial terms go stale fast, so
// they get the short TTL. Matching runs over the normalized concatenation of
// question and answer.
var pricePattern = regexp.MustCompile(`\b(precio|price|quote|presupuesto|usd|ars|dolar|dolares|cuota|cuotas|installment|financiacion)\b`)

var currencyPattern = regexp.MustCompile(`[$€£]`)

// TTLPolicy decides how long a learned answer stays valid.
type TTLPolicy struct {
	DefaultDays int
	PriceDays   int
}

// Days classifies a question/answer pair: PriceDays when the pair mentions
// money, DefaultDays otherwise.
func (p TTLPolicy) Days(question, answer string) int {
	raw := question + " " + answer
	if currencyPattern.MatchString(raw) || pricePattern.MatchString(Normalize(raw)) {
		return p.PriceDays
	}
	return p.DefaultDays
}

// ExpiresAt returns the expiry instant for a pair learned at the given time.
func (p TTLPolicy) ExpiresAt(question, answer string, createdAt time.Time) time.Time {
	return createdAt.Add(time.Duration(p.Days(question, answer)) * 24 * time.Hour)
}
