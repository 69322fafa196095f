package vamana

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: ConfigError, Field: "num_neighbors", Err: fmt.Errorf("must be positive")}
	want := "vamana: ConfigError[num_neighbors]: must be positive"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	noField := &Error{Kind: StorageError, Err: fmt.Errorf("short read")}
	want = "vamana: StorageError: short read"
	if got := noField.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := &Error{Kind: Invariant, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is did not find the wrapped cause")
	}
}

func TestIsKind(t *testing.T) {
	err := newErr(TrainingError, "samples", "need more samples")
	if !IsKind(err, TrainingError) {
		t.Fatal("IsKind(TrainingError) = false, want true")
	}
	if IsKind(err, ConfigError) {
		t.Fatal("IsKind(ConfigError) = true, want false")
	}
}

func TestIsKindThroughWrap(t *testing.T) {
	inner := newErr(SchemaError, "dims", "bad dims")
	wrapped := fmt.Errorf("build failed: %w", inner)
	if !IsKind(wrapped, SchemaError) {
		t.Fatal("IsKind did not see through fmt.Errorf wrapping")
	}
}

func TestIsKindNilError(t *testing.T) {
	if IsKind(nil, ConfigError) {
		t.Fatal("IsKind(nil, ...) = true, want false")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		ConfigError:   "ConfigError",
		SchemaError:   "SchemaError",
		StorageError:  "StorageError",
		TrainingError: "TrainingError",
		Interrupted:   "Interrupted",
		Invariant:     "Invariant",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
