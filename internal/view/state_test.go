package view

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"projectdesk/internal/domain"
)

func TestSelectBranch(t *testing.T) {
	tests := []struct {
		state State
		want  Branch
	}{
		{Idle{}, BranchNone},
		{Loading{ID: 1}, BranchLoading},
		{Failed{ID: 1, Reason: "not found", Err: errors.New("not found")}, BranchError},
		{Loaded{ID: 1, Project: domain.NewProject(map[string]any{"id": 1})}, BranchDetail},
		{nil, BranchNone},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SelectBranch(tc.state), "state %v", tc.state)
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", Idle{}.String())
	assert.Equal(t, "loading(3)", Loading{ID: 3}.String())
	assert.Equal(t, "loaded(3)", Loaded{ID: 3}.String())
	assert.Equal(t, "failed(3): not found", Failed{ID: 3, Reason: "not found"}.String())
	assert.Equal(t, "error", BranchError.String())
	assert.Equal(t, "none", BranchNone.String())
}
