package evaluation

// NewConfusion returns counters seeded per Epsilon.
func NewConfusion() Confusion {
	return Confusion{FP: Epsilon, FN: Epsilon}
}

// Add records one prediction against its truth.
func (c *Confusion) Add(predictedPositive, truthPositive bool) {
	switch {
	case predictedPositive && truthPositive:
		c.TP++
	case predictedPositive && !truthPositive:
		c.FP++
	case !predictedPositive && truthPositive:
		c.FN++
	default:
		c.TN++
	}
}

// Precision calculates TP / (TP + FP)
func Precision(c Confusion) float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return c.TP / (c.TP + c.FP)
}

// Recall calculates TP / (TP + FN)
func Recall(c Confusion) float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return c.TP / (c.TP + c.FN)
}

// FScore calculates the harmonic mean of precision and recall, 0 when both are 0.
func FScore(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * (precision * recall) / (precision + recall)
}

// Result derives the metrics of c.
func (c Confusion) Result() *Result {
	p, r := Precision(c), Recall(c)
	return &Result{
		Confusion: c,
		Precision: p,
		Recall:    r,
		FScore:    FScore(p, r),
	}
}
