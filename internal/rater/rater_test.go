package rater

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewsift/sift/internal/core/screen"
)

// mockLLM replies per system-prompt persona, or fails for chosen titles.
type mockLLM struct {
	mu        sync.Mutex
	calls     int
	rater1    string
	rater2    string
	failTitle string
}

func (m *mockLLM) Generate(_ context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.failTitle != "" && strings.Contains(prompt, m.failTitle) {
		return "", errors.New("simulated upstream failure")
	}
	if strings.Contains(system, "Rater-1") {
		return m.rater1, nil
	}
	return m.rater2, nil
}

func TestScreenBatch_ParsesOpinions(t *testing.T) {
	mock := &mockLLM{
		rater1: `{"label": "include", "reasoning": "right population"}`,
		rater2: `{"label": "exclude", "reasoning": "not an rct"}`,
	}
	r := New(mock, Prompts{}, 2)

	results := r.ScreenBatch(context.Background(), screen.StageTitleAbstract, []Request{
		{RecordID: "p1", Title: "Ketamine for depression", Abstract: "An RCT of ketamine."},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].RecordID)
	assert.NoError(t, results[0].Rater1.Err)
	assert.Equal(t, screen.LabelInclude, results[0].Rater1.Opinion.Label)
	assert.Equal(t, screen.LabelExclude, results[0].Rater2.Opinion.Label)
	assert.Equal(t, "right population", results[0].Rater1.Opinion.Reasoning)
	assert.Equal(t, 2, mock.calls) // two raters, one record
}

func TestScreenBatch_MarkdownFencedJSON(t *testing.T) {
	mock := &mockLLM{
		rater1: "```json\n{\"label\": \"include\", \"reasoning\": \"ok\"}\n```",
		rater2: `{"label": "include", "reasoning": "ok"}`,
	}
	r := New(mock, Prompts{}, 1)

	results := r.ScreenBatch(context.Background(), screen.StageTitleAbstract, []Request{
		{RecordID: "p1", Title: "t"},
	})

	assert.NoError(t, results[0].Rater1.Err)
	assert.Equal(t, screen.LabelInclude, results[0].Rater1.Opinion.Label)
}

func TestScreenBatch_InvalidLabelDegradesToUncertain(t *testing.T) {
	mock := &mockLLM{
		rater1: `{"label": "maybe", "reasoning": "unsure"}`,
		rater2: `{"label": "INCLUDE", "reasoning": "case insensitive"}`,
	}
	r := New(mock, Prompts{}, 1)

	results := r.ScreenBatch(context.Background(), screen.StageTitleAbstract, []Request{
		{RecordID: "p1", Title: "t"},
	})

	assert.Equal(t, screen.LabelUncertain, results[0].Rater1.Opinion.Label)
	assert.Equal(t, "unsure", results[0].Rater1.Opinion.Reasoning)
	assert.Equal(t, screen.LabelInclude, results[0].Rater2.Opinion.Label)
}

func TestScreenBatch_FailureIsolatedPerRecord(t *testing.T) {
	mock := &mockLLM{
		rater1:    `{"label": "include", "reasoning": "ok"}`,
		rater2:    `{"label": "include", "reasoning": "ok"}`,
		failTitle: "Broken paper",
	}
	r := New(mock, Prompts{}, 3)

	results := r.ScreenBatch(context.Background(), screen.StageTitleAbstract, []Request{
		{RecordID: "p1", Title: "Fine paper"},
		{RecordID: "p2", Title: "Broken paper"},
		{RecordID: "p3", Title: "Also fine"},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Rater1.Err)
	assert.Error(t, results[1].Rater1.Err)
	assert.Error(t, results[1].Rater2.Err)
	assert.NoError(t, results[2].Rater1.Err)

	// Adjudication turns the failed pair into uncertain, not an abort.
	d := screen.Adjudicate(results[1].RecordID, screen.StageTitleAbstract, results[1].Rater1, results[1].Rater2)
	assert.Equal(t, screen.LabelUncertain, d.FinalLabel)
}

func TestScreenBatch_PreservesInputOrder(t *testing.T) {
	mock := &mockLLM{
		rater1: `{"label": "include", "reasoning": "ok"}`,
		rater2: `{"label": "include", "reasoning": "ok"}`,
	}
	r := New(mock, Prompts{}, 2)

	requests := []Request{
		{RecordID: "a", Title: "one"},
		{RecordID: "b", Title: "two"},
		{RecordID: "c", Title: "three"},
		{RecordID: "d", Title: "four"},
	}

	results := r.ScreenBatch(context.Background(), screen.StageTitleAbstract, requests)

	require.Len(t, results, 4)
	for i, req := range requests {
		assert.Equal(t, req.RecordID, results[i].RecordID)
	}
}

func TestBuildMessage_FulltextTruncation(t *testing.T) {
	long := strings.Repeat("x", fulltextWindow+100)

	msg := buildMessage(screen.StageFulltext, Request{
		Title:    "t",
		FullText: long,
		Criteria: "adults only",
	})

	assert.Contains(t, msg, "Inclusion criteria:\nadults only")
	assert.Contains(t, msg, "[... text truncated ...]")
	assert.Less(t, len(msg), len(long))
}

func TestBuildMessage_TruncationKeepsRunesIntact(t *testing.T) {
	// Three-byte runes guarantee the window boundary lands mid-rune.
	long := strings.Repeat("随", fulltextWindow)

	msg := buildMessage(screen.StageFulltext, Request{Title: "t", FullText: long})

	assert.True(t, utf8.ValidString(msg))
	assert.NotContains(t, msg, string(utf8.RuneError))
	assert.Contains(t, msg, "[... text truncated ...]")
}

func TestBuildMessage_MissingFieldsPlaceholders(t *testing.T) {
	msg := buildMessage(screen.StageTitleAbstract, Request{})

	assert.Contains(t, msg, "(no title)")
	assert.Contains(t, msg, "(no abstract)")
}
