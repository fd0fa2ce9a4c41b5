package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrCodeDisposed, Message: "context is disposed", Context: "len-0001"}
	assert.Equal(t, "DISPOSED: context is disposed (context=len-0001)", err.Error())

	err = &Error{Code: ErrCodeInvalidArgument, Message: "name must be a non-empty string"}
	assert.Equal(t, "INVALID_ARGUMENT: name must be a non-empty string", err.Error())
}

func TestError_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"disposed", newDisposedError("x"), IsDisposedError, true},
		{"invalid", newInvalidArgument("bad %s", "arg"), IsInvalidArgumentError, true},
		{"missing run", &Error{Code: ErrCodeMissingRun}, IsMissingRunError, true},
		{"degraded", &Error{Code: ErrCodeDegradedRaise}, IsDegradedRaiseError, true},
		{"wrong code", newDisposedError("x"), IsInvalidArgumentError, false},
		{"plain error", errors.New("boom"), IsDisposedError, false},
		{"nil", nil, IsDisposedError, false},
		{"wrapped", fmt.Errorf("param: %w", newInvalidArgument("bad")), IsInvalidArgumentError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestNewInvalidArgument_FormatsMessage(t *testing.T) {
	err := newInvalidArgument("parameter %q is bad", "min")
	assert.Equal(t, ErrCodeInvalidArgument, err.Code)
	assert.Equal(t, `parameter "min" is bad`, err.Message)
}
