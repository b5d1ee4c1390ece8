package knowledge

// Jaccard returns the token-set similarity of two texts in [0,1]. Inputs are
// normalized before tokenization, so callers may pass raw text.
func Jaccard(a, b string) float64 {
	setA := Tokens(a)
	setB := Tokens(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
