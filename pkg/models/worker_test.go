package models

import "testing"

func TestWorkerStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status WorkerStatus
		want   bool
	}{
		{"idle is valid", WorkerStatusIdle, true},
		{"busy is valid", WorkerStatusBusy, true},
		{"offline is valid", WorkerStatusOffline, true},
		{"empty string is invalid", WorkerStatus(""), false},
		{"unknown status is invalid", WorkerStatus("sleeping"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("WorkerStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
