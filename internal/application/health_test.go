package application

import (
	"context"
	"errors"
	"testing"
)

func TestHealthServiceIsHealthy(t *testing.T) {
	service := NewHealthService(newTestRegistry(t, &mockDatabase{}), &mockDatabase{})

	if !service.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true")
	}
}

func TestHealthServiceDetails(t *testing.T) {
	tests := []struct {
		name    string
		pingErr error
		ready   bool
		status  string
	}{
		{
			name:   "database reachable",
			ready:  true,
			status: "ok",
		},
		{
			name:    "database down",
			pingErr: errors.New("connection refused"),
			ready:   false,
			status:  "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDatabase{pingErr: tt.pingErr}
			service := NewHealthService(newTestRegistry(t, db), db)
			ctx := context.Background()

			if got := service.IsReady(ctx); got != tt.ready {
				t.Errorf("IsReady() = %v, want %v", got, tt.ready)
			}

			details := service.GetHealthDetails(ctx)
			if details.Ready != tt.ready {
				t.Errorf("details.Ready = %v, want %v", details.Ready, tt.ready)
			}
			if details.ServicesRegistered != 1 {
				t.Errorf("details.ServicesRegistered = %d, want 1", details.ServicesRegistered)
			}
			if details.Components["database"] != tt.status {
				t.Errorf("database status = %q, want %q", details.Components["database"], tt.status)
			}
		})
	}
}
