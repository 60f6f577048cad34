package taskchampion_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/timcase/taskchampion-go"
)

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, tc.Classify(nil))
}

func TestClassify_TypedErrorsPassThrough(t *testing.T) {
	orig := &tc.ValidationError{Msg: "task description cannot be empty"}
	classified := tc.Classify(fmt.Errorf("wrapped: %w", orig))
	require.IsType(t, &tc.ValidationError{}, classified)
	assert.Same(t, orig, classified)
}

func TestClassify_Keywords(t *testing.T) {
	tests := []struct {
		msg  string
		want tc.Error
	}{
		{"database disk image is malformed", &tc.StorageError{}},
		{"network unreachable", &tc.SyncError{}},
		{"config file missing", &tc.ConfigError{}},
		{"invalid uuid length", &tc.ValidationError{}},
		{"something odd happened", &tc.GenericError{}},
	}
	for _, tt := range tests {
		got := tc.Classify(errors.New(tt.msg))
		assert.IsType(t, tt.want, got, "message %q", tt.msg)
	}
}

func TestClassify_BranchOrder(t *testing.T) {
	// Storage evidence outranks everything else, and sync outranks
	// config and validation.
	got := tc.Classify(errors.New("invalid response from storage server"))
	assert.IsType(t, &tc.StorageError{}, got)

	got = tc.Classify(errors.New("invalid config for sync server"))
	assert.IsType(t, &tc.SyncError{}, got)

	got = tc.Classify(errors.New("invalid config value"))
	assert.IsType(t, &tc.ConfigError{}, got)
}

func TestClassify_PreservesCause(t *testing.T) {
	cause := errors.New("database locked")
	classified := tc.Classify(cause)
	assert.True(t, errors.Is(classified, cause))
}
