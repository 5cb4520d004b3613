package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindDuplicates_ExactMatch(t *testing.T) {
	records := []Record{
		{ID: "a", Title: "Ketamine for treatment-resistant depression"},
		{ID: "b", Title: "Ketamine for treatment-resistant depression"},
	}

	result := FindDuplicates(records)

	assert.Equal(t, "", result["a"]) // first occurrence kept
	assert.Equal(t, "a", result["b"])
}

func TestFindDuplicates_NearMatch(t *testing.T) {
	// Trailing punctuation difference still scores above the threshold.
	records := []Record{
		{ID: "a", Title: "Ketamine for treatment-resistant depression"},
		{ID: "b", Title: "Ketamine for treatment-resistant depression."},
	}

	result := FindDuplicates(records)

	assert.Equal(t, "", result["a"])
	assert.Equal(t, "a", result["b"])
}

func TestFindDuplicates_CaseAndWhitespaceInsensitive(t *testing.T) {
	records := []Record{
		{ID: "a", Title: "Ketamine for Treatment-Resistant Depression"},
		{ID: "b", Title: "  ketamine for treatment-resistant depression  "},
	}

	result := FindDuplicates(records)

	assert.Equal(t, "a", result["b"])
}

func TestFindDuplicates_DistinctTitlesKept(t *testing.T) {
	records := []Record{
		{ID: "a", Title: "Ketamine for depression"},
		{ID: "b", Title: "Mindfulness for anxiety"},
	}

	result := FindDuplicates(records)

	assert.Equal(t, "", result["a"])
	assert.Equal(t, "", result["b"])
}

func TestFindDuplicates_EmptyTitlesAlwaysOriginal(t *testing.T) {
	records := []Record{
		{ID: "a", Title: ""},
		{ID: "b", Title: "   "},
		{ID: "c", Title: ""},
	}

	result := FindDuplicates(records)

	assert.Equal(t, "", result["a"])
	assert.Equal(t, "", result["b"])
	assert.Equal(t, "", result["c"])
}

func TestFindDuplicates_FirstOriginalWins(t *testing.T) {
	// b matches a; c matches both a and b, but maps to a because originals
	// are checked in insertion order and b was never kept.
	records := []Record{
		{ID: "a", Title: "Exercise therapy for chronic low back pain"},
		{ID: "b", Title: "Exercise therapy for chronic low back pain."},
		{ID: "c", Title: "Exercise therapy for chronic low back pain"},
	}

	result := FindDuplicates(records)

	assert.Equal(t, "", result["a"])
	assert.Equal(t, "a", result["b"])
	assert.Equal(t, "a", result["c"])
}

func TestFindDuplicates_OrderSensitiveButCountStable(t *testing.T) {
	forward := []Record{
		{ID: "a", Title: "Statins for primary prevention of cardiovascular disease"},
		{ID: "b", Title: "Statins for primary prevention of cardiovascular disease."},
	}
	reversed := []Record{forward[1], forward[0]}

	countDuplicates := func(m map[string]string) int {
		n := 0
		for _, dupOf := range m {
			if dupOf != "" {
				n++
			}
		}
		return n
	}

	fwd := FindDuplicates(forward)
	rev := FindDuplicates(reversed)

	// Which ID is flagged flips with input order, the count does not.
	assert.Equal(t, "a", fwd["b"])
	assert.Equal(t, "b", rev["a"])
	assert.Equal(t, countDuplicates(fwd), countDuplicates(rev))
}
