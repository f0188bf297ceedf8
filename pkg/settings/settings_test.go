package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

func TestCurrentFallsBackToDefaults(t *testing.T) {
	svc := NewService(storage.NewMemory())
	got, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults, got)
}

func TestCurrentReadsThrough(t *testing.T) {
	mem := storage.NewMemory()
	mem.PutSettings(request.Settings{Duration: "8", Expiry: "3", Approval: false, SNSNotificationsEnabled: true})
	svc := NewService(mem)

	got, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8", got.Duration)
	assert.False(t, got.Approval)
	assert.True(t, got.SNSNotificationsEnabled)
}

func TestApprovalExpiry(t *testing.T) {
	tests := []struct {
		expiry string
		want   time.Duration
	}{
		{"3", 3 * time.Hour},
		{"0.5", 30 * time.Minute},
		{"PT2H", 2 * time.Hour},
		{"garbage", 24 * time.Hour}, // falls back to the default window
		{"", 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.expiry, func(t *testing.T) {
			assert.Equal(t, tt.want, ApprovalExpiry(request.Settings{Expiry: tt.expiry}))
		})
	}
}
