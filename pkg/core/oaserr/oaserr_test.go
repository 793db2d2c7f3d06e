package oaserr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestKindMatching(t *testing.T) {
	err := RecordNotFound(42)

	if !errors.Is(err, NotFound) {
		t.Fatal("RecordNotFound must match the NotFound sentinel")
	}
	if errors.Is(err, DimensionMismatch) {
		t.Fatal("kinds must not cross-match")
	}

	// Matching survives wrapping.
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, NotFound) {
		t.Fatal("wrapped error lost its kind")
	}
}

func TestWrapIoPreservesCause(t *testing.T) {
	err := WrapIo(io.ErrUnexpectedEOF)

	if !errors.Is(err, Io) {
		t.Fatal("WrapIo must carry the Io kind")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("WrapIo must preserve the wrapped cause")
	}
	if WrapIo(nil) != nil {
		t.Fatal("WrapIo(nil) must be nil")
	}
}

func TestMessages(t *testing.T) {
	err := InvalidDimension(3, 8)
	want := "dimension mismatch: invalid vector dimension: expected 8, found 3"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}

	if Corrupt("bad %s", "magic").Kind != KindCorruptStream {
		t.Fatal("Corrupt must build CorruptStream errors")
	}
}
