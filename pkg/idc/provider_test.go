package idc

import (
	"testing"

	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "throttling", err: &smithy.GenericAPIError{Code: "ThrottlingException"}, want: true},
		{name: "too many requests", err: &smithy.GenericAPIError{Code: "TooManyRequestsException"}, want: true},
		{name: "service unavailable", err: &smithy.GenericAPIError{Code: "ServiceUnavailableException"}, want: true},
		{name: "internal server", err: &smithy.GenericAPIError{Code: "InternalServerException"}, want: true},
		{name: "wrapped throttling", err: errors.Wrap(&smithy.GenericAPIError{Code: "ThrottlingException"}, "creating assignment"), want: true},
		{name: "access denied is permanent", err: &smithy.GenericAPIError{Code: "AccessDeniedException"}, want: false},
		{name: "validation is permanent", err: &smithy.GenericAPIError{Code: "ValidationException"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "nil-ish", err: errors.New(""), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
