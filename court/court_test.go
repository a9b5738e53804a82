package court_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	cqrs "github.com/terraskye/progression"
	"github.com/terraskye/progression/court"
	"github.com/terraskye/progression/eventstore/sqlite"
	"github.com/terraskye/progression/fixtures"
)

func newRouter(store cqrs.EventStore) *cqrs.Router {
	router := cqrs.NewRouter()
	court.Register(router, store)
	return router
}

func dispatch[P any](t *testing.T, router *cqrs.Router, name string, payload P) (cqrs.AppendResult, error) {
	t.Helper()
	return router.Dispatch(t.Context(), fixtures.NewTestCommand(name, payload).Raw())
}

func mustDispatch[P any](t *testing.T, router *cqrs.Router, name string, payload P) cqrs.AppendResult {
	t.Helper()
	result, err := dispatch(t, router, name, payload)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return result
}

func TestRegisterRoutesEveryCommand(t *testing.T) {
	router := newRouter(fixtures.NewStoreSpy())
	want := []string{
		court.AddCourtDocumentCommand,
		court.InitiateProsecutionCommand,
		court.ListHearingCommand,
		court.ListUnallocatedHearingCommand,
		court.RecordUploadedDocumentCommand,
		court.RemoveCourtDocumentCommand,
		court.ResultHearingCommand,
		court.UpdateDefendantsCommand,
	}
	got := router.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %q at %d, got %q", want[i], i, got[i])
		}
	}
}

func TestCourtDocumentLifecycle(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)
	id := uuid.New()
	add := court.AddCourtDocument{CourtDocumentID: id, Name: "charge sheet", DocumentCategory: "case"}

	result := mustDispatch(t, router, court.AddCourtDocumentCommand, add)
	if result.Outcome != cqrs.Appended || result.StreamID != id.String() || result.NextExpectedVersion != 1 {
		t.Fatalf("unexpected add result %+v", result)
	}

	result = mustDispatch(t, router, court.AddCourtDocumentCommand, add)
	if result.Outcome != cqrs.Skipped || result.NextExpectedVersion != 1 {
		t.Fatalf("expected repeated add to be skipped, got %+v", result)
	}

	remove := court.RemoveCourtDocument{CourtDocumentID: id}
	if result := mustDispatch(t, router, court.RemoveCourtDocumentCommand, remove); result.NextExpectedVersion != 2 {
		t.Fatalf("unexpected remove result %+v", result)
	}

	_, err := dispatch(t, router, court.RemoveCourtDocumentCommand, remove)
	if !errors.Is(err, cqrs.ErrMutation) || !errors.Is(err, court.ErrCourtDocumentAbsent) {
		t.Fatalf("expected mutation error for absent document, got %v", err)
	}
	if n := len(store.Stream(id.String())); n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
}

func TestCourtDocumentRequiresID(t *testing.T) {
	store := fixtures.NewStoreSpy()
	_, err := dispatch(t, newRouter(store), court.AddCourtDocumentCommand, court.AddCourtDocument{Name: "x"})
	if !errors.Is(err, cqrs.ErrResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if store.LoadStreamCalls+store.LoadStreamFromCalls != 0 {
		t.Fatal("expected no store access before resolution succeeds")
	}
}

func TestInitiateProsecutionOpensFreshStreams(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)
	initiate := court.InitiateProsecution{
		URN:        "01AB2345678",
		Defendants: []court.Defendant{{FirstName: "Ada", LastName: "Byron"}},
	}

	first := mustDispatch(t, router, court.InitiateProsecutionCommand, initiate)
	second := mustDispatch(t, router, court.InitiateProsecutionCommand, initiate)

	if first.StreamID == second.StreamID {
		t.Fatalf("expected distinct streams, both got %s", first.StreamID)
	}
	if store.Streams() != 2 {
		t.Fatalf("expected 2 streams, got %d", store.Streams())
	}

	history := store.Stream(first.StreamID)
	if len(history) != 1 {
		t.Fatalf("expected 1 event, got %d", len(history))
	}
	initiated, ok := history[0].Event.(court.ProsecutionCaseInitiated)
	if !ok {
		t.Fatalf("expected ProsecutionCaseInitiated, got %T", history[0].Event)
	}
	if initiated.ProsecutionCaseID.String() != first.StreamID {
		t.Errorf("expected the event to carry the stream id, got %s", initiated.ProsecutionCaseID)
	}
	d := initiated.Defendants[0]
	if d.ID == uuid.Nil || d.ProsecutionCaseID != initiated.ProsecutionCaseID {
		t.Errorf("expected defendant attached to the case, got %+v", d)
	}
}

func TestUpdateDefendantsUsesFirstDefendant(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)
	started := mustDispatch(t, router, court.InitiateProsecutionCommand, court.InitiateProsecution{
		URN:        "01AB2345678",
		Defendants: []court.Defendant{{ID: uuid.New(), FirstName: "Ada", LastName: "Byron"}},
	})
	caseID := uuid.MustParse(started.StreamID)
	existing := store.Stream(started.StreamID)[0].Event.(court.ProsecutionCaseInitiated).Defendants[0]

	other := uuid.New()
	update := court.UpdateDefendants{Defendants: []court.Defendant{
		{ID: existing.ID, ProsecutionCaseID: caseID, FirstName: "Ada", LastName: "Lovelace"},
		{ID: uuid.New(), ProsecutionCaseID: other, FirstName: "Charles", LastName: "Babbage"},
	}}

	result := mustDispatch(t, router, court.UpdateDefendantsCommand, update)
	if result.Outcome != cqrs.Appended || result.StreamID != started.StreamID || result.NextExpectedVersion != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if store.Streams() != 1 {
		t.Fatalf("expected the mismatched parent to be ignored, got %d streams", store.Streams())
	}
	for _, env := range store.Stream(started.StreamID)[1:] {
		updated := env.Event.(court.DefendantUpdated)
		if updated.Defendant.ProsecutionCaseID != caseID {
			t.Errorf("expected defendant attached to %s, got %s", caseID, updated.Defendant.ProsecutionCaseID)
		}
	}

	update.Defendants[1].ProsecutionCaseID = caseID
	result = mustDispatch(t, router, court.UpdateDefendantsCommand, update)
	if result.Outcome != cqrs.NoChange || result.NextExpectedVersion != 3 {
		t.Fatalf("expected no change for identical defendants, got %+v", result)
	}
}

func TestUpdateDefendantsFailures(t *testing.T) {
	tests := []struct {
		name  string
		input court.UpdateDefendants
		kind  error
		cause error
	}{
		{
			name:  "empty defendant list",
			input: court.UpdateDefendants{},
			kind:  cqrs.ErrResolution,
		},
		{
			name:  "first defendant without a case",
			input: court.UpdateDefendants{Defendants: []court.Defendant{{ID: uuid.New()}}},
			kind:  cqrs.ErrResolution,
		},
		{
			name:  "case never initiated",
			input: court.UpdateDefendants{Defendants: []court.Defendant{{ID: uuid.New(), ProsecutionCaseID: uuid.New()}}},
			kind:  cqrs.ErrMutation,
			cause: court.ErrCaseNotInitiated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dispatch(t, newRouter(fixtures.NewStoreSpy()), court.UpdateDefendantsCommand, tt.input)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Fatalf("expected %v, got %v", tt.cause, err)
			}
		})
	}
}

func TestRecordUploadedDocument(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)
	upload := court.RecordUploadedDocument{FileServiceID: uuid.New(), MaterialID: uuid.New()}

	result := mustDispatch(t, router, court.RecordUploadedDocumentCommand, upload)
	uploaded := store.Stream(result.StreamID)[0].Event.(court.DocumentUploaded)
	if uploaded.UploadID.String() != result.StreamID || uploaded.MaterialID != upload.MaterialID {
		t.Fatalf("unexpected event %+v", uploaded)
	}
}

func TestListHearingBypassesUnallocated(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)

	result := mustDispatch(t, router, court.ListHearingCommand, court.ListHearing{
		HearingID:   uuid.New(),
		Unallocated: true,
	})
	if !result.Successful || result.Outcome != cqrs.Bypassed {
		t.Fatalf("expected bypass, got %+v", result)
	}
	if store.LoadStreamCalls+store.LoadStreamFromCalls+store.SaveCalls != 0 {
		t.Fatal("expected no store access for a bypassed command")
	}
}

func TestHearingLifecycle(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)
	id := uuid.New()
	list := court.ListHearing{
		HearingID:     id,
		CourtCentreID: uuid.New(),
		StartAt:       time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC),
	}

	_, err := dispatch(t, router, court.ResultHearingCommand, court.ResultHearing{HearingID: id})
	if !errors.Is(err, court.ErrHearingNotListed) {
		t.Fatalf("expected ErrHearingNotListed, got %v", err)
	}

	mustDispatch(t, router, court.ListHearingCommand, list)
	if result := mustDispatch(t, router, court.ListHearingCommand, list); result.Outcome != cqrs.Skipped {
		t.Fatalf("expected identical listing to be skipped, got %+v", result)
	}

	result := mustDispatch(t, router, court.ResultHearingCommand, court.ResultHearing{
		HearingID: id,
		Results:   []string{"adjourned"},
		Final:     true,
	})
	if result.NextExpectedVersion != 3 {
		t.Fatalf("expected resulted and closed events, got %+v", result)
	}
	if _, ok := store.Stream(id.String())[2].Event.(court.HearingClosed); !ok {
		t.Fatal("expected the final result to close the hearing")
	}

	_, err = dispatch(t, router, court.ResultHearingCommand, court.ResultHearing{HearingID: id})
	if !errors.Is(err, cqrs.ErrMutation) || !errors.Is(err, court.ErrHearingAlreadyResulted) {
		t.Fatalf("expected ErrHearingAlreadyResulted, got %v", err)
	}
	_, err = dispatch(t, router, court.ListHearingCommand, list)
	if !errors.Is(err, court.ErrHearingAlreadyResulted) {
		t.Fatalf("expected relisting a resulted hearing to fail, got %v", err)
	}
}

func TestListUnallocatedHearing(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)
	cmd := court.ListUnallocatedHearing{HearingID: uuid.New(), CourtCentreID: uuid.New(), EstimatedMinutes: 90}

	if result := mustDispatch(t, router, court.ListUnallocatedHearingCommand, cmd); result.Outcome != cqrs.Appended {
		t.Fatalf("expected append, got %+v", result)
	}
	if result := mustDispatch(t, router, court.ListUnallocatedHearingCommand, cmd); result.Outcome != cqrs.Skipped {
		t.Fatalf("expected skip, got %+v", result)
	}
}

func TestCorrelationIsPropagated(t *testing.T) {
	store := fixtures.NewStoreSpy()
	router := newRouter(store)
	id := uuid.New()
	cmd := fixtures.NewTestCommand(court.AddCourtDocumentCommand, court.AddCourtDocument{CourtDocumentID: id, Name: "x"}).
		WithCorrelationID("case-file-7").
		WithUserID("clerk-1").
		Raw()

	if _, err := router.Dispatch(t.Context(), cmd); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	env := store.Stream(id.String())[0]
	if env.CorrelationID() != "case-file-7" || env.CausationID() != cmd.Metadata.ID.String() || env.UserID() != "clerk-1" {
		t.Fatalf("unexpected metadata %v", env.Metadata)
	}
}

func TestEventsSurviveSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "court.db")
	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	router := newRouter(store)
	id := uuid.New()
	mustDispatch(t, router, court.ListHearingCommand, court.ListHearing{
		HearingID:     id,
		CourtCentreID: uuid.New(),
		StartAt:       time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC),
	})
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	router = newRouter(store)
	result := mustDispatch(t, router, court.ResultHearingCommand, court.ResultHearing{HearingID: id, Results: []string{"guilty"}})
	if result.NextExpectedVersion != 2 {
		t.Fatalf("expected the hearing to be rehydrated from disk, got %+v", result)
	}

	it, err := store.LoadStream(t.Context(), id.String())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	history, err := it.All(t.Context())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resulted, ok := history[1].Event.(court.HearingResulted)
	if !ok || resulted.Results[0] != "guilty" {
		t.Fatalf("unexpected event %#v", history[1].Event)
	}
}
