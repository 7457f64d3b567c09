package evaluation

// Epsilon seeds the false positive and false negative counters so precision
// and recall are defined even when a confusion class never occurs.
const Epsilon = 1e-8

// Threshold is the positive probability at or above which a document is
// predicted positive.
const Threshold = 0.5

// Confusion holds the confusion counts of one evaluation pass. FP and FN
// start at Epsilon, TP and TN at zero.
type Confusion struct {
	TP float64 `json:"tp"`
	FP float64 `json:"fp"`
	TN float64 `json:"tn"`
	FN float64 `json:"fn"`
}

// Result contains the metrics of one evaluation pass.
type Result struct {
	Confusion
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	FScore    float64 `json:"f_score"`
	Count     int     `json:"count"`
}

// Summary aggregates results across training epochs.
type Summary struct {
	Epochs        int     `json:"epochs"`
	BestEpoch     int     `json:"best_epoch"` // 1-based, 0 when empty
	BestFScore    float64 `json:"best_f_score"`
	FinalFScore   float64 `json:"final_f_score"`
	MeanPrecision float64 `json:"mean_precision"`
	MeanRecall    float64 `json:"mean_recall"`
	MeanFScore    float64 `json:"mean_f_score"`
}
