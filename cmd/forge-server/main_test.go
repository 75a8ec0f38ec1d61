package main

import "testing"

func TestParseHostPort(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{":8000", "", 8000, false},
		{"localhost:3001", "localhost", 3001, false},
		{"", "", 9999, false},
		{"0.0.0.0:http", "0.0.0.0", 9999, false},
		{"nonsense", "", 0, true},
	}

	for _, tt := range tests {
		host, port, err := parseHostPort(tt.addr, 9999)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHostPort(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("parseHostPort(%q) = %q, %d; want %q, %d", tt.addr, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

func TestServicePort(t *testing.T) {
	if got := servicePort("", 8000); got != -1 {
		t.Errorf("Disabled service should report -1, got %d", got)
	}
	if got := servicePort(":9100", 8000); got != 9100 {
		t.Errorf("Expected 9100, got %d", got)
	}
}
