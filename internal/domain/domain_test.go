package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://example.com",
		"http://example.com/path?q=1",
		"https://sub.example.org/a/b#frag",
	}
	for _, u := range valid {
		assert.NoError(t, ValidateURL(u), u)
	}

	invalid := []string{
		"",
		"example.com",
		"/relative/path",
		"ftp://example.com/file",
		"https://",
		"not a url",
	}
	for _, u := range invalid {
		assert.ErrorIs(t, ValidateURL(u), ErrInvalidURL, u)
	}
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Add(Progress{Completed: 1, Total: 3, Status: OutcomeSuccess})
	assert.Equal(t, 33, tally.Percent())

	tally.Add(Progress{Completed: 2, Total: 3, Status: OutcomeFailed})
	assert.Equal(t, 67, tally.Percent())
	assert.Equal(t, "Imported 1 URLs (1 failed)", tally.Message())

	tally.Add(Progress{Completed: 3, Total: 3, Status: OutcomeSuccess})
	assert.Equal(t, 100, tally.Percent())
	assert.Equal(t, 2, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
}

func TestTally_AllSucceeded(t *testing.T) {
	var tally Tally
	tally.Add(Progress{Completed: 1, Total: 1, Status: OutcomeSuccess})
	assert.Equal(t, "Successfully imported 1 URLs", tally.Message())
}

func TestTally_EmptyPercent(t *testing.T) {
	assert.Equal(t, 0, Tally{}.Percent())
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, Status("DONE").Valid())
}
