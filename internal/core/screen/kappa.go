package screen

import (
	"fmt"
	"math"
)

// kappaLabelOrder fixes the confusion-matrix axes. The order is preserved
// even when a class is absent from a batch, so the statistic stays
// comparable across batches.
var kappaLabelOrder = [3]Label{LabelInclude, LabelExclude, LabelUncertain}

// ComputeKappa returns Cohen's kappa for two same-length label sequences,
// rounded to 4 decimal places. Negative values (worse-than-chance agreement)
// are preserved.
//
// ok is false when the statistic is undefined: fewer than 2 paired
// observations, or fewer than 2 distinct labels observed across both
// sequences combined. A length mismatch or a label outside the fixed
// alphabet is a caller bug and returns an error.
func ComputeKappa(labels1, labels2 []Label) (kappa float64, ok bool, err error) {
	if len(labels1) != len(labels2) {
		return 0, false, fmt.Errorf("label sequences differ in length: %d vs %d", len(labels1), len(labels2))
	}

	n := len(labels1)
	if n < 2 {
		return 0, false, nil
	}

	distinct := make(map[Label]struct{}, 3)
	for _, l := range labels1 {
		distinct[l] = struct{}{}
	}
	for _, l := range labels2 {
		distinct[l] = struct{}{}
	}
	if len(distinct) < 2 {
		return 0, false, nil
	}

	index := make(map[Label]int, 3)
	for i, l := range kappaLabelOrder {
		index[l] = i
	}

	var confusion [3][3]float64
	for i := range labels1 {
		a, aok := index[labels1[i]]
		b, bok := index[labels2[i]]
		if !aok {
			return 0, false, fmt.Errorf("label %q outside fixed alphabet", labels1[i])
		}
		if !bok {
			return 0, false, fmt.Errorf("label %q outside fixed alphabet", labels2[i])
		}
		confusion[a][b]++
	}

	total := float64(n)
	var observed, expected float64
	for i := 0; i < 3; i++ {
		observed += confusion[i][i] / total

		var row, col float64
		for j := 0; j < 3; j++ {
			row += confusion[i][j]
			col += confusion[j][i]
		}
		expected += (row / total) * (col / total)
	}

	if expected == 1 {
		// Degenerate marginals; kappa is undefined.
		return 0, false, nil
	}

	k := (observed - expected) / (1 - expected)
	return math.Round(k*10000) / 10000, true, nil
}
