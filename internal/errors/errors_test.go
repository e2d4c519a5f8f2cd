package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "with cause",
			err:     NewTransient(errors.New("network timeout")),
			wantMsg: "transient error: network timeout",
		},
		{
			name:    "with nil cause",
			err:     NewTransient(nil),
			wantMsg: "",
		},
		{
			name:    "with formatted error",
			err:     NewTransientf("connection failed: %s", "timeout"),
			wantMsg: "transient error: connection failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				return
			}
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestPermanentError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "with cause",
			err:     NewPermanent(errors.New("not found")),
			wantMsg: "permanent error: not found",
		},
		{
			name:    "with nil cause",
			err:     NewPermanent(nil),
			wantMsg: "",
		},
		{
			name:    "with formatted error",
			err:     NewPermanentf("invalid input: %s", "malformed"),
			wantMsg: "permanent error: invalid input: malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				return
			}
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "explicit transient error",
			err:  NewTransient(errors.New("timeout")),
			want: true,
		},
		{
			name: "explicit permanent error",
			err:  NewPermanent(errors.New("not found")),
			want: false,
		},
		{
			name: "wrapped transient error",
			err:  fmt.Errorf("analysis failed: %w", NewTransient(errors.New("timeout"))),
			want: true,
		},
		{
			name: "wrapped permanent error",
			err:  fmt.Errorf("analysis failed: %w", NewPermanent(errors.New("bad key"))),
			want: false,
		},
		{
			name: "timeout sentinel",
			err:  fmt.Errorf("calling backend: %w", ErrTimeout),
			want: true,
		},
		{
			name: "rate limit sentinel",
			err:  fmt.Errorf("calling backend: %w", ErrRateLimit),
			want: true,
		},
		{
			name: "not found sentinel",
			err:  fmt.Errorf("lookup: %w", ErrNotFound),
			want: false,
		},
		{
			name: "syntax sentinel",
			err:  fmt.Errorf("parse: %w", ErrSyntax),
			want: false,
		},
		{
			name: "unknown plain error defaults to non-transient",
			err:  errors.New("something odd"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(nil) {
		t.Error("IsPermanent(nil) = true, want false")
	}
	if !IsPermanent(NewPermanent(errors.New("bad input"))) {
		t.Error("IsPermanent() = false for permanent error, want true")
	}
	if IsPermanent(NewTransient(errors.New("timeout"))) {
		t.Error("IsPermanent() = true for transient error, want false")
	}
	if !IsPermanent(fmt.Errorf("wrapped: %w", NewPermanentf("nope"))) {
		t.Error("IsPermanent() = false for wrapped permanent error, want true")
	}
}

func TestIsSyntax(t *testing.T) {
	if IsSyntax(nil) {
		t.Error("IsSyntax(nil) = true, want false")
	}
	if !IsSyntax(fmt.Errorf("parse snippet: %w", ErrSyntax)) {
		t.Error("IsSyntax() = false for wrapped ErrSyntax, want true")
	}
	if IsSyntax(errors.New("invalid python code")) {
		t.Error("IsSyntax() = true for unrelated error with same text, want false")
	}
}

func TestClassifyAnalyzerError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNil       bool
		wantTransient bool
	}{
		{
			name:    "nil stays nil",
			err:     nil,
			wantNil: true,
		},
		{
			name:          "connection refused is transient",
			err:           errors.New("dial tcp 127.0.0.1:8000: connection refused"),
			wantTransient: true,
		},
		{
			name:          "rate limit is transient",
			err:           errors.New("429 Too Many Requests: rate limit"),
			wantTransient: true,
		},
		{
			name:          "invalid api key is permanent",
			err:           errors.New("401 invalid api key"),
			wantTransient: false,
		},
		{
			name:          "model not found is permanent",
			err:           errors.New("404 model not found"),
			wantTransient: false,
		},
		{
			name:          "unknown backend error defaults to transient",
			err:           errors.New("upstream exploded"),
			wantTransient: true,
		},
		{
			name:          "already classified permanent passes through",
			err:           NewPermanent(errors.New("timeout")),
			wantTransient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyAnalyzerError(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("ClassifyAnalyzerError(nil) = %v, want nil", got)
				}
				return
			}
			if IsTransient(got) != tt.wantTransient {
				t.Errorf("IsTransient(classified) = %v, want %v (err: %v)", IsTransient(got), tt.wantTransient, got)
			}
		})
	}
}
