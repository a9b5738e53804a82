package progression

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestErrorStrings(t *testing.T) {
	stream := uuid.MustParse("5f0c2a4e-8a8e-4d49-9a55-0a6f7f4c6e11")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "StreamRevisionConflictError",
			err: &StreamRevisionConflictError{
				Stream:           "stream-123",
				ExpectedRevision: 5,
				ActualRevision:   7,
			},
			want: `stream "stream-123": expected revision 5, actual 7`,
		},
		{
			name: "DispatchError without stream",
			err: &DispatchError{
				Command: "progression.update-defendants",
				Kind:    ErrResolution,
				Err:     errEmptyCollection,
			},
			want: "dispatch progression.update-defendants: stream resolution failed: payload collection is empty",
		},
		{
			name: "DispatchError with stream",
			err: &DispatchError{
				Command:  "progression.result-hearing",
				StreamID: stream,
				Kind:     ErrMutation,
				Err:      errors.New("hearing already resulted"),
			},
			want: "dispatch progression.result-hearing (stream 5f0c2a4e-8a8e-4d49-9a55-0a6f7f4c6e11): mutation rejected: hearing already resulted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatchErrorKinds(t *testing.T) {
	conflict := &StreamRevisionConflictError{Stream: "s", ExpectedRevision: 1, ActualRevision: 2}
	kinds := []error{ErrResolution, ErrRehydration, ErrMutation, ErrConflict, ErrAppend}

	tests := []struct {
		name      string
		err       error
		kind      error
		retryable bool
	}{
		{"resolution", &DispatchError{Kind: ErrResolution, Err: errMissingStreamID}, ErrResolution, false},
		{"rehydration", &DispatchError{Kind: ErrRehydration, Err: ErrInvalidRevision}, ErrRehydration, false},
		{"mutation", &DispatchError{Kind: ErrMutation, Err: errors.New("no")}, ErrMutation, false},
		{"conflict", &DispatchError{Kind: ErrConflict, Err: conflict}, ErrConflict, true},
		{"append", &DispatchError{Kind: ErrAppend, Err: errors.New("disk full")}, ErrAppend, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("transport: %w", tt.err)
			for _, k := range kinds {
				if got := errors.Is(wrapped, k); got != (k == tt.kind) {
					t.Errorf("errors.Is(err, %v) = %v", k, got)
				}
			}
			if got := IsRetryable(wrapped); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			var de *DispatchError
			if !errors.As(wrapped, &de) {
				t.Fatal("expected errors.As to find *DispatchError")
			}
		})
	}
}

func TestConflictErrorMatchesErrConflict(t *testing.T) {
	err := fmt.Errorf("save: %w", &StreamRevisionConflictError{Stream: "s"})
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected revision conflict to match ErrConflict")
	}
	if errors.Is(err, ErrAppend) {
		t.Fatal("revision conflict must not match ErrAppend")
	}
}

func TestCheckRevision(t *testing.T) {
	tests := []struct {
		name     string
		expected StreamState
		current  uint64
		wantErr  error
	}{
		{"any on empty", Any{}, 0, nil},
		{"any on existing", Any{}, 3, nil},
		{"no stream on empty", NoStream{}, 0, nil},
		{"no stream on existing", NoStream{}, 1, ErrStreamExists},
		{"stream exists on existing", StreamExists{}, 2, nil},
		{"stream exists on empty", StreamExists{}, 0, ErrStreamNotFound},
		{"matching revision", Revision(4), 4, nil},
		{"stale revision", Revision(3), 4, ErrConflict},
		{"revision zero on empty", Revision(0), 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRevision("s", tt.expected, tt.current)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
