package security

import (
	"testing"
	"time"
)

func TestIsExpiredAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		grace     time.Duration
		want      bool
	}{
		{
			name:      "zero time never expires",
			expiresAt: time.Time{},
			grace:     DefaultClockSkewGracePeriod,
			want:      false,
		},
		{
			name:      "future expiry",
			expiresAt: now.Add(time.Hour),
			grace:     DefaultClockSkewGracePeriod,
			want:      false,
		},
		{
			name:      "just expired but within grace",
			expiresAt: now.Add(-2 * time.Second),
			grace:     DefaultClockSkewGracePeriod,
			want:      false,
		},
		{
			name:      "expired past grace",
			expiresAt: now.Add(-10 * time.Second),
			grace:     DefaultClockSkewGracePeriod,
			want:      true,
		},
		{
			name:      "expired with zero grace",
			expiresAt: now.Add(-time.Nanosecond),
			grace:     0,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpiredAt(tt.expiresAt, now, tt.grace); got != tt.want {
				t.Errorf("IsExpiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	if IsExpired(time.Time{}) {
		t.Error("IsExpired(zero) = true, want false")
	}
	if IsExpired(time.Now().Add(time.Hour)) {
		t.Error("IsExpired(future) = true, want false")
	}
	if !IsExpired(time.Now().Add(-time.Minute)) {
		t.Error("IsExpired(past) = false, want true")
	}
}

func TestIsExpiringSoon(t *testing.T) {
	if IsExpiringSoon(time.Time{}, time.Hour) {
		t.Error("IsExpiringSoon(zero) = true, want false")
	}
	if !IsExpiringSoon(time.Now().Add(time.Minute), time.Hour) {
		t.Error("IsExpiringSoon(1m, threshold 1h) = false, want true")
	}
	if IsExpiringSoon(time.Now().Add(2*time.Hour), time.Hour) {
		t.Error("IsExpiringSoon(2h, threshold 1h) = true, want false")
	}
}
