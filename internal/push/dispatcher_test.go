package push

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakeSender struct {
	lastMsg *ExpoMessage
	body    []byte
	err     error
}

func (f *fakeSender) Send(ctx context.Context, msg ExpoMessage) ([]byte, error) {
	f.lastMsg = &msg
	return f.body, f.err
}

type fakeRecorder struct {
	sentID       *uuid.UUID
	failedID     *uuid.UUID
	failedReason string
}

func (f *fakeRecorder) MarkSent(id uuid.UUID) error {
	f.sentID = &id
	return nil
}

func (f *fakeRecorder) MarkFailed(id uuid.UUID, reason string) error {
	f.failedID = &id
	f.failedReason = reason
	return nil
}

func TestDispatchFiltersInvalidTokens(t *testing.T) {
	sender := &fakeSender{body: []byte(`{"data":[{"status":"ok"}]}`)}
	recorder := &fakeRecorder{}
	d := NewDispatcher(sender, recorder)

	id := uuid.New()
	result, err := d.Dispatch(context.Background(), Request{
		PushNotificationID: &id,
		Tokens:             []string{"ExponentPushToken[good]", "garbage"},
		Title:              "New message",
		Body:               "hello",
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if result.Skipped != "" {
		t.Fatalf("unexpected skip: %s", result.Skipped)
	}

	if sender.lastMsg == nil {
		t.Fatal("provider was not called")
	}
	if len(sender.lastMsg.To) != 1 || sender.lastMsg.To[0] != "ExponentPushToken[good]" {
		t.Fatalf("unexpected recipient list: %v", sender.lastMsg.To)
	}
	if sender.lastMsg.Sound != "default" {
		t.Fatalf("expected default sound, got %q", sender.lastMsg.Sound)
	}

	if recorder.sentID == nil || *recorder.sentID != id {
		t.Fatal("notification was not marked sent")
	}
}

func TestDispatchSkipsWhenNoValidTokens(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	d := NewDispatcher(sender, recorder)

	id := uuid.New()
	result, err := d.Dispatch(context.Background(), Request{
		PushNotificationID: &id,
		Tokens:             []string{"garbage", "more-garbage"},
		Title:              "New message",
	})
	if err != nil {
		t.Fatalf("expected skip, got error: %v", err)
	}
	if result.Skipped != SkipNoValidTokens {
		t.Fatalf("expected skip reason %q, got %q", SkipNoValidTokens, result.Skipped)
	}

	if sender.lastMsg != nil {
		t.Fatal("provider must not be called with an empty batch")
	}
	if recorder.failedID == nil || *recorder.failedID != id {
		t.Fatal("notification record was not marked failed")
	}
	if recorder.sentID != nil {
		t.Fatal("notification must not be marked sent")
	}
}

func TestDispatchProviderFailureIsTerminal(t *testing.T) {
	provErr := &ProviderError{StatusCode: 500, Body: "boom"}
	sender := &fakeSender{err: provErr}
	recorder := &fakeRecorder{}
	d := NewDispatcher(sender, recorder)

	id := uuid.New()
	_, err := d.Dispatch(context.Background(), Request{
		PushNotificationID: &id,
		Tokens:             []string{"ExponentPushToken[good]"},
		Title:              "New message",
	})
	if err == nil {
		t.Fatal("expected provider error")
	}
	var got *ProviderError
	if !errors.As(err, &got) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if recorder.failedID == nil || *recorder.failedID != id {
		t.Fatal("notification record was not marked failed")
	}
}

func TestParseRequestUnifiedPayload(t *testing.T) {
	id := uuid.New()
	body := []byte(`{
		"push_notification_id": "` + id.String() + `",
		"expo_push_tokens": ["ExponentPushToken[a]", "ExponentPushToken[b]"],
		"title": "New message",
		"body": "hi",
		"data": {"conversation_id": "abc"}
	}`)

	req, err := ParseRequest(body)
	if err != nil {
		t.Fatalf("ParseRequest error: %v", err)
	}
	if req.Legacy {
		t.Fatal("unified payload parsed as legacy")
	}
	if req.PushNotificationID == nil || *req.PushNotificationID != id {
		t.Fatal("push_notification_id not parsed")
	}
	if len(req.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(req.Tokens))
	}
	if req.Data["conversation_id"] != "abc" {
		t.Fatalf("data not carried through: %v", req.Data)
	}
}

func TestParseRequestLegacyPayload(t *testing.T) {
	body := []byte(`{
		"expo_push_token": "ExponentPushToken[solo]",
		"title": "New message",
		"body": "hi"
	}`)

	req, err := ParseRequest(body)
	if err != nil {
		t.Fatalf("ParseRequest error: %v", err)
	}
	if !req.Legacy {
		t.Fatal("legacy payload not flagged")
	}
	if req.PushNotificationID != nil {
		t.Fatal("legacy payload must not carry a record id")
	}
	if len(req.Tokens) != 1 || req.Tokens[0] != "ExponentPushToken[solo]" {
		t.Fatalf("unexpected tokens: %v", req.Tokens)
	}
}

func TestParseRequestRejectsGarbage(t *testing.T) {
	if _, err := ParseRequest([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := ParseRequest([]byte(`{}`)); err == nil {
		t.Fatal("expected error for missing token fields")
	}
	if _, err := ParseRequest([]byte(`{"expo_push_tokens": ["x"], "push_notification_id": "not-a-uuid"}`)); err == nil {
		t.Fatal("expected error for invalid record id")
	}
}
