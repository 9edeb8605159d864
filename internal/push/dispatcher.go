package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// SkipNoValidTokens is the skip reason when a fan-out has no deliverable
// tokens. It is an expected empty-fan-out case, not a fault: the HTTP
// response is still a success, only the notification record is marked failed.
const SkipNoValidTokens = "no_valid_tokens"

// Sender is the provider call (satisfied by Provider)
type Sender interface {
	Send(ctx context.Context, msg ExpoMessage) ([]byte, error)
}

// Recorder persists delivery status on notification records
// (satisfied by repository.PushRepository).
type Recorder interface {
	MarkSent(id uuid.UUID) error
	MarkFailed(id uuid.UUID, reason string) error
}

// Request is the discriminated dispatch payload. The unified shape carries a
// notification record id and a token batch; the legacy single-token shape is
// kept as a compatibility adapter and converted into the same structure with
// no record to patch.
type Request struct {
	PushNotificationID *uuid.UUID
	Tokens             []string
	Title              string
	Body               string
	Data               map[string]interface{}
	Legacy             bool
}

type unifiedPayload struct {
	PushNotificationID string                 `json:"push_notification_id"`
	ExpoPushTokens     []string               `json:"expo_push_tokens"`
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Data               map[string]interface{} `json:"data"`
}

type legacyPayload struct {
	ExpoPushToken string                 `json:"expo_push_token"`
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	Data          map[string]interface{} `json:"data"`
}

// ParseRequest decodes a dispatch body, accepting both payload shapes.
func ParseRequest(body []byte) (Request, error) {
	var unified unifiedPayload
	if err := json.Unmarshal(body, &unified); err != nil {
		return Request{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	if unified.PushNotificationID != "" || unified.ExpoPushTokens != nil {
		id, err := uuid.Parse(unified.PushNotificationID)
		if err != nil {
			return Request{}, fmt.Errorf("invalid push_notification_id: %w", err)
		}
		return Request{
			PushNotificationID: &id,
			Tokens:             unified.ExpoPushTokens,
			Title:              unified.Title,
			Body:               unified.Body,
			Data:               unified.Data,
		}, nil
	}

	var legacy legacyPayload
	if err := json.Unmarshal(body, &legacy); err != nil {
		return Request{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if legacy.ExpoPushToken == "" {
		return Request{}, fmt.Errorf("expo_push_token or expo_push_tokens required")
	}

	return Request{
		Tokens: []string{legacy.ExpoPushToken},
		Title:  legacy.Title,
		Body:   legacy.Body,
		Data:   legacy.Data,
		Legacy: true,
	}, nil
}

// Result is a completed dispatch: either the provider response body, or a
// skip reason for an expected no-op.
type Result struct {
	Skipped      string
	ProviderBody []byte
}

// Dispatcher filters tokens, performs one batched provider call and records
// the outcome on the originating notification record.
type Dispatcher struct {
	sender   Sender
	recorder Recorder
}

func NewDispatcher(sender Sender, recorder Recorder) *Dispatcher {
	return &Dispatcher{sender: sender, recorder: recorder}
}

// Dispatch delivers one notification batch. A returned error means the
// provider call failed; the record has already been marked failed, and the
// failure is terminal — no retry is attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	valid := FilterValidTokens(req.Tokens)
	if len(valid) == 0 {
		d.markFailed(req, "no valid tokens")
		return Result{Skipped: SkipNoValidTokens}, nil
	}

	body, err := d.sender.Send(ctx, ExpoMessage{
		To:    valid,
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
		Sound: "default",
	})
	if err != nil {
		d.markFailed(req, err.Error())
		return Result{}, err
	}

	if req.PushNotificationID != nil && d.recorder != nil {
		if err := d.recorder.MarkSent(*req.PushNotificationID); err != nil {
			log.Printf("failed to mark notification %s sent: %v", req.PushNotificationID, err)
		}
	}

	return Result{ProviderBody: body}, nil
}

func (d *Dispatcher) markFailed(req Request, reason string) {
	if req.PushNotificationID == nil || d.recorder == nil {
		return
	}
	if err := d.recorder.MarkFailed(*req.PushNotificationID, reason); err != nil {
		log.Printf("failed to mark notification %s failed: %v", req.PushNotificationID, err)
	}
}
