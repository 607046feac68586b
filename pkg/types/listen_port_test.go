// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestListenPort_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port ListenPort
		want string
	}{
		{0, "0"},
		{5001, "5001"},
		{65535, "65535"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.port.String(); got != tt.want {
				t.Errorf("ListenPort(%d).String() = %q, want %q", tt.port, got, tt.want)
			}
		})
	}
}

func TestListenPort_Address(t *testing.T) {
	t.Parallel()

	if got := ListenPort(5001).Address("127.0.0.1"); got != "127.0.0.1:5001" {
		t.Errorf("Address() = %q, want %q", got, "127.0.0.1:5001")
	}
	if got := ListenPort(6001).Address("::1"); got != "[::1]:6001" {
		t.Errorf("Address() = %q, want %q", got, "[::1]:6001")
	}
}

func TestListenPort_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port    ListenPort
		wantErr bool
	}{
		{0, false},
		{1, false},
		{5001, false},
		{65535, false},
		{-1, true},
		{65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.port.String(), func(t *testing.T) {
			t.Parallel()
			err := tt.port.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Errorf("ListenPort(%d).Validate() = %v, want nil", tt.port, err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidListenPort) {
				t.Errorf("error should wrap ErrInvalidListenPort, got: %v", err)
			}
			var lpErr *InvalidListenPortError
			if !errors.As(err, &lpErr) {
				t.Fatalf("error should be *InvalidListenPortError, got: %T", err)
			}
			if lpErr.Value != tt.port {
				t.Errorf("InvalidListenPortError.Value = %d, want %d", lpErr.Value, tt.port)
			}
		})
	}
}
