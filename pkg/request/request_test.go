package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending to approved", from: StatusPending, to: StatusApproved, want: true},
		{name: "pending to scheduled", from: StatusPending, to: StatusScheduled, want: true},
		{name: "pending direct grant", from: StatusPending, to: StatusInProgress, want: true},
		{name: "approved to scheduled", from: StatusApproved, to: StatusScheduled, want: true},
		{name: "scheduled to in progress", from: StatusScheduled, to: StatusInProgress, want: true},
		{name: "scheduled cancelled during wait", from: StatusScheduled, to: StatusCancelled, want: true},
		{name: "in progress to revoked", from: StatusInProgress, to: StatusRevoked, want: true},
		{name: "failed grant cleaned up", from: StatusError, to: StatusRevoked, want: true},
		{name: "revoked is terminal", from: StatusRevoked, to: StatusInProgress, want: false},
		{name: "no backward move", from: StatusApproved, to: StatusPending, want: false},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusApproved, want: false},
		{name: "rejected cannot be granted", from: StatusRejected, to: StatusInProgress, want: false},
		{name: "expired is terminal", from: StatusExpired, to: StatusApproved, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusCancelled, StatusExpired, StatusRevoked} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []Status{StatusPending, StatusScheduled, StatusApproved, StatusInProgress, StatusError} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "plain hours", in: "4", want: 4 * time.Hour},
		{name: "fractional hours", in: "0.5", want: 30 * time.Minute},
		{name: "iso hour", in: "PT1H", want: time.Hour},
		{name: "iso minutes", in: "PT30M", want: 30 * time.Minute},
		{name: "iso mixed", in: "PT1H30M", want: 90 * time.Minute},
		{name: "iso days", in: "P1D", want: 24 * time.Hour},
		{name: "lowercase iso", in: "pt2h", want: 2 * time.Hour},
		{name: "whitespace", in: " 8 ", want: 8 * time.Hour},
		{name: "empty", in: "", wantErr: true},
		{name: "zero", in: "0", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
		{name: "garbage", in: "soon", wantErr: true},
		{name: "bare P", in: "P", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
