package network

import (
	"testing"
)

func TestValidateMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantErr bool
	}{
		{name: "empty uses engine default", mode: ""},
		{name: "none", mode: "none"},
		{name: "bridge", mode: "bridge"},
		{name: "host", mode: "host"},
		{name: "user network", mode: "agents_net-1"},
		{name: "container reference", mode: "container:proxy"},
		{name: "empty container reference", mode: "container:", wantErr: true},
		{name: "spaces", mode: "my net", wantErr: true},
		{name: "leading dash", mode: "-net", wantErr: true},
		{name: "flag injection", mode: "none --privileged", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMode(tt.mode)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateMode(%q) expected error", tt.mode)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateMode(%q) unexpected error: %v", tt.mode, err)
			}
		})
	}
}

func TestIsIsolated(t *testing.T) {
	if !IsIsolated("none") {
		t.Error("none should be isolated")
	}
	if IsIsolated("bridge") || IsIsolated("") {
		t.Error("bridge and default should not be isolated")
	}
	if !SharesHost("host") || SharesHost("none") {
		t.Error("SharesHost mismatch")
	}
}

func TestValidateDNS(t *testing.T) {
	for _, ok := range []string{"1.1.1.1", "2606:4700:4700::1111"} {
		if err := ValidateDNS(ok); err != nil {
			t.Errorf("ValidateDNS(%q) unexpected error: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "dns.google", "1.1.1"} {
		if err := ValidateDNS(bad); err == nil {
			t.Errorf("ValidateDNS(%q) expected error", bad)
		}
	}
}

func TestValidateExtraHost(t *testing.T) {
	tests := []struct {
		entry   string
		wantErr bool
	}{
		{entry: "registry.local:10.0.0.5"},
		{entry: "v6host:fd00::1"},
		{entry: "host.docker.internal:host-gateway"},
		{entry: "nocolon", wantErr: true},
		{entry: ":10.0.0.5", wantErr: true},
		{entry: "name:not-an-ip", wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateExtraHost(tt.entry)
		if tt.wantErr && err == nil {
			t.Errorf("ValidateExtraHost(%q) expected error", tt.entry)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ValidateExtraHost(%q) unexpected error: %v", tt.entry, err)
		}
	}
}
