package domain

import "testing"

func TestJobPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"matches date-id format", "230101-1200-ABCD", "230101/1200-ABCD"},
		{"lowercase hex", "123456-1234-abcd", "123456/1234-abcd"},
		{"non-matching passes through", "not-a-job-id", "not-a-job-id"},
		{"wrong digit count passes through", "23010-1200-ABCD", "23010-1200-ABCD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JobPath(tt.in); got != tt.want {
				t.Errorf("JobPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
