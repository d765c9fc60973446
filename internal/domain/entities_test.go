package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

func TestTopLabel(t *testing.T) {
	scores := map[string]float64{
		"Pneumonia":   0.87,
		"Atelectasis": 0.21,
		"Edema":       0.44,
	}
	assert.Equal(t, "Pneumonia", domain.TopLabel(scores))
}

func TestTopLabel_TieBreaksLexicographically(t *testing.T) {
	scores := map[string]float64{
		"Nodule": 0.5,
		"Mass":   0.5,
		"Edema":  0.1,
	}
	// Equal scores resolve to the lexicographically smallest label so the
	// pick is stable across runs.
	assert.Equal(t, "Mass", domain.TopLabel(scores))
}

func TestTopLabel_Empty(t *testing.T) {
	assert.Equal(t, "", domain.TopLabel(nil))
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, domain.JobQueued.Terminal())
	assert.False(t, domain.JobInProgress.Terminal())
	assert.True(t, domain.JobCompleted.Terminal())
	assert.True(t, domain.JobFailed.Terminal())
}

func TestPathologies_Count(t *testing.T) {
	assert.Len(t, domain.Pathologies, 18)
	seen := map[string]bool{}
	for _, l := range domain.Pathologies {
		assert.False(t, seen[l], "duplicate label %s", l)
		seen[l] = true
	}
}
