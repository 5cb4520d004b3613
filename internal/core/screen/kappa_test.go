package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeKappa_PerfectAgreement(t *testing.T) {
	labels := []Label{LabelInclude, LabelExclude, LabelInclude, LabelUncertain}

	k, ok, err := ComputeKappa(labels, labels)

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.0, k)
}

func TestComputeKappa_CompleteInversion(t *testing.T) {
	// Perfect cross-disagreement on a binary sequence is worse than chance.
	a := []Label{LabelInclude, LabelExclude}
	b := []Label{LabelExclude, LabelInclude}

	k, ok, err := ComputeKappa(a, b)

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1.0, k)
}

func TestComputeKappa_SingleObservationUndefined(t *testing.T) {
	_, ok, err := ComputeKappa([]Label{LabelInclude}, []Label{LabelInclude})

	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestComputeKappa_SingleClassUndefined(t *testing.T) {
	a := []Label{LabelInclude, LabelInclude, LabelInclude}

	_, ok, err := ComputeKappa(a, a)

	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestComputeKappa_Mixed(t *testing.T) {
	// Agreement exactly at chance level.
	a := []Label{LabelInclude, LabelExclude, LabelInclude, LabelExclude}
	b := []Label{LabelInclude, LabelInclude, LabelExclude, LabelExclude}

	k, ok, err := ComputeKappa(a, b)

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, k, -1.0)
	assert.LessOrEqual(t, k, 1.0)
	assert.Equal(t, 0.0, k)
}

func TestComputeKappa_Rounding(t *testing.T) {
	// po = 2/3, marginals give pe = 4/9 + 1/9 = 5/9, kappa = 0.2 exactly;
	// a 6-obs variant produces a repeating decimal that must round to 4 dp.
	a := []Label{LabelInclude, LabelInclude, LabelExclude, LabelInclude, LabelInclude, LabelExclude}
	b := []Label{LabelInclude, LabelInclude, LabelExclude, LabelExclude, LabelInclude, LabelInclude}

	k, ok, err := ComputeKappa(a, b)

	assert.NoError(t, err)
	assert.True(t, ok)
	// po = 4/6, pe = (4/6)(4/6) + (2/6)(2/6) = 5/9; kappa = 1/4
	assert.Equal(t, 0.25, k)
}

func TestComputeKappa_LengthMismatchIsCallerBug(t *testing.T) {
	_, _, err := ComputeKappa(
		[]Label{LabelInclude, LabelExclude},
		[]Label{LabelInclude},
	)

	assert.Error(t, err)
}

func TestComputeKappa_UnknownLabelIsCallerBug(t *testing.T) {
	_, _, err := ComputeKappa(
		[]Label{LabelInclude, Label("maybe")},
		[]Label{LabelInclude, LabelExclude},
	)

	assert.Error(t, err)
}
