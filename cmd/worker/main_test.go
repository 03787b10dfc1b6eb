package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 5 * time.Minute},
		{"30s", 30 * time.Second},
		{"0", 5 * time.Minute},
		{"0s", 5 * time.Minute},
		{"-1m", 5 * time.Minute},
		{"soon", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RECONCILE_INTERVAL", tt.value)
			assert.Equal(t, tt.want, getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute))
		})
	}
}
