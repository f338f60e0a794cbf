package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/amishk599/jobrelay/internal/model"
)

// notifyOnce runs one positive message through the harness and returns the
// operator action template for its notification.
func notifyOnce(t *testing.T, h *harness, text string) model.OperatorAction {
	t.Helper()
	res, err := h.coord.HandleIncomingMessage(context.Background(), text, model.SourceMeta{}, positive)
	if err != nil || res.Outcome != OutcomeNotified {
		t.Fatalf("setup: res = %+v err = %v", res, err)
	}
	n := h.messenger.interactive[len(h.messenger.interactive)-1]
	return model.OperatorAction{
		Fingerprint:  res.Fingerprint,
		Operator:     n.recipient,
		MessageID:    "100:1",
		OriginalText: n.text,
		CallbackID:   "cb-1",
	}
}

func TestHandleOperatorAction_Confirm(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	a := notifyOnce(t, h, "Go role, contact @hr_team")
	a.Kind = model.ActionConfirm

	if err := h.coord.HandleOperatorAction(ctx, a); err != nil {
		t.Fatalf("HandleOperatorAction: %v", err)
	}

	rec, _ := h.store.NotificationByMessageID(ctx, "100:1")
	if rec.Status != model.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", rec.Status)
	}

	if len(h.messenger.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(h.messenger.edits))
	}
	e := h.messenger.edits[0]
	if !strings.HasPrefix(e.text, a.OriginalText) || !strings.HasSuffix(e.text, markerConfirmed) {
		t.Errorf("edited text = %q", e.text)
	}
	if len(e.actions) != 1 || len(e.actions[0]) != 1 || e.actions[0][0].Kind != model.ActionFullText {
		t.Errorf("edited actions = %+v", e.actions)
	}
	if len(h.messenger.acks) != 1 || h.messenger.acks[0].text != "Confirmed" {
		t.Errorf("acks = %+v", h.messenger.acks)
	}
}

func TestHandleOperatorAction_SkipAfterConfirmRejected(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	a := notifyOnce(t, h, "Go role, contact @hr_team")

	a.Kind = model.ActionConfirm
	if err := h.coord.HandleOperatorAction(ctx, a); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	a.Kind = model.ActionSkip
	a.CallbackID = "cb-2"
	if err := h.coord.HandleOperatorAction(ctx, a); err != nil {
		t.Fatalf("skip: %v", err)
	}

	rec, _ := h.store.NotificationByMessageID(ctx, "100:1")
	if rec.Status != model.StatusConfirmed {
		t.Errorf("status = %s, want confirmed to stand", rec.Status)
	}
	if len(h.messenger.edits) != 1 {
		t.Errorf("edits = %d, want only the first", len(h.messenger.edits))
	}
	last := h.messenger.acks[len(h.messenger.acks)-1]
	if !last.alert || !strings.Contains(last.text, "already handled") {
		t.Errorf("operator not told: %+v", last)
	}
}

func TestHandleOperatorAction_RecomposesWithoutOriginalText(t *testing.T) {
	h := newHarness(t, "100")
	a := notifyOnce(t, h, "Python contract, @py_hr")
	a.Kind = model.ActionSkip
	a.OriginalText = ""

	if err := h.coord.HandleOperatorAction(context.Background(), a); err != nil {
		t.Fatalf("HandleOperatorAction: %v", err)
	}
	e := h.messenger.edits[0]
	if !strings.Contains(e.text, "Python contract") || !strings.HasSuffix(e.text, markerSkipped) {
		t.Errorf("edited text = %q", e.text)
	}
}

func TestHandleOperatorAction_FullTextChunked(t *testing.T) {
	h := newHarness(t, "100")
	h.coord.cfg.MaxMessageRunes = 50
	long := "Hiring @long_post " + strings.Repeat("lorem ipsum ", 20)
	a := notifyOnce(t, h, long)
	a.Kind = model.ActionFullText

	if err := h.coord.HandleOperatorAction(context.Background(), a); err != nil {
		t.Fatalf("HandleOperatorAction: %v", err)
	}
	if len(h.messenger.texts) < 2 {
		t.Fatalf("texts = %d, want several chunks", len(h.messenger.texts))
	}
	var joined strings.Builder
	for _, m := range h.messenger.texts {
		if m.recipient != "100" || len([]rune(m.text)) > 50 {
			t.Errorf("chunk = %+v", m)
		}
		joined.WriteString(m.text)
	}
	if joined.String() != long {
		t.Error("chunks do not reassemble into the original text")
	}

	rec, _ := h.store.NotificationByMessageID(context.Background(), "100:1")
	if rec.Status != model.StatusPending {
		t.Errorf("full text changed status to %s", rec.Status)
	}
}

func TestHandleOperatorAction_UnknownNotification(t *testing.T) {
	h := newHarness(t, "100")
	err := h.coord.HandleOperatorAction(context.Background(), model.OperatorAction{
		Kind: model.ActionConfirm, Fingerprint: "nope", Operator: "100", MessageID: "100:42", CallbackID: "cb",
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(h.messenger.acks) != 1 || !h.messenger.acks[0].alert {
		t.Errorf("acks = %+v", h.messenger.acks)
	}
}

func TestHandleOperatorAction_PanicRecovered(t *testing.T) {
	h := newHarness(t, "100")
	a := notifyOnce(t, h, "Rust role, @rust_hr")
	a.Kind = model.ActionConfirm
	h.messenger.panicOnEdit = true

	err := h.coord.HandleOperatorAction(context.Background(), a)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	last := h.messenger.texts[len(h.messenger.texts)-1]
	if last.recipient != "100" || last.text != genericFailureNotice {
		t.Errorf("failure notice = %+v", last)
	}
}

func TestHandleOperatorAction_UnknownKind(t *testing.T) {
	h := newHarness(t, "100")
	err := h.coord.HandleOperatorAction(context.Background(), model.OperatorAction{Kind: "delete", Operator: "100"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, model.ErrNotFound) {
		t.Error("unexpected ErrNotFound")
	}
	if len(h.messenger.texts) != 1 {
		t.Errorf("operator not notified of failure")
	}
}
