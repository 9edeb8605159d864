package thread

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

type fakeDirectStore struct {
	conv    *models.Conversation
	history []models.Message
	sendErr error
	block   chan struct{} // if set, SendMessage waits until closed
	entered chan struct{} // closed when SendMessage is entered
}

func (f *fakeDirectStore) GetByID(id uuid.UUID) (*models.Conversation, error) {
	return f.conv, nil
}

func (f *fakeDirectStore) GetMessages(conversationID uuid.UUID) ([]models.Message, error) {
	return f.history, nil
}

func (f *fakeDirectStore) SendMessage(conversationID, senderID uuid.UUID, content string, image *models.ImageAttachment) (*models.Message, error) {
	if f.entered != nil {
		close(f.entered)
		f.entered = nil
	}
	if f.block != nil {
		<-f.block
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}, nil
}

type fakeOrgStore struct {
	conv      *models.OrganizationConversation
	renamed   string
	removedID *uuid.UUID
}

func (f *fakeOrgStore) GetByID(id uuid.UUID) (*models.OrganizationConversation, error) {
	return f.conv, nil
}

func (f *fakeOrgStore) GetMessages(conversationID uuid.UUID) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeOrgStore) SendMessage(conversationID, senderID uuid.UUID, content string, image *models.ImageAttachment) (*models.Message, error) {
	return &models.Message{ID: uuid.New(), ConversationID: conversationID, SenderID: senderID, Content: content, CreatedAt: time.Now()}, nil
}

func (f *fakeOrgStore) Rename(conversationID, userID uuid.UUID, name string) error {
	f.renamed = name
	return nil
}

func (f *fakeOrgStore) RemoveMember(conversationID, requesterID, targetID uuid.UUID) error {
	f.removedID = &targetID
	return nil
}

type fakeReadMarker struct {
	calls int
}

func (f *fakeReadMarker) MarkRead(family models.ConversationFamily, conversationID uuid.UUID) error {
	f.calls++
	return nil
}

func directConv(userID uuid.UUID) (*models.Conversation, uuid.UUID) {
	other := uuid.New()
	return &models.Conversation{
		ID:             uuid.New(),
		Participant1ID: userID,
		Participant2ID: other,
		Counterpart:    &models.UserSummary{ID: other, DisplayName: "Maria"},
	}, other
}

func TestOpenLoadsHistoryAndMarksRead(t *testing.T) {
	userID := uuid.New()
	conv, other := directConv(userID)

	history := []models.Message{
		{ID: uuid.New(), ConversationID: conv.ID, SenderID: other, Content: "hello", CreatedAt: time.Unix(100, 0)},
		{ID: uuid.New(), ConversationID: conv.ID, SenderID: userID, Content: "hi", CreatedAt: time.Unix(200, 0)},
	}
	store := &fakeDirectStore{conv: conv, history: history}
	reads := &fakeReadMarker{}

	subscribed := false
	stopped := false
	subscribe := func(handler func(models.MessageEvent)) func() {
		subscribed = true
		return func() { stopped = true }
	}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, reads, nil, subscribe)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if c.Title() != "Maria" {
		t.Fatalf("title = %q, want Maria", c.Title())
	}
	if got := len(c.Messages()); got != 2 {
		t.Fatalf("history length = %d, want 2", got)
	}
	if reads.calls == 0 {
		t.Fatal("opening the thread did not mark it read")
	}
	if !subscribed {
		t.Fatal("realtime subscription was not attached")
	}

	c.Close()
	if !stopped {
		t.Fatal("subscription was not torn down on close")
	}
}

func TestHandleInsertDedupesDuplicateDelivery(t *testing.T) {
	userID := uuid.New()
	conv, other := directConv(userID)
	store := &fakeDirectStore{conv: conv}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       other,
		Content:        "once",
		CreatedAt:      time.Now(),
	}
	event := models.MessageEvent{Family: models.FamilyDirect, ConversationID: conv.ID, Message: msg}

	// at-least-once delivery: the same event may arrive repeatedly
	c.HandleInsert(event)
	c.HandleInsert(event)
	c.HandleInsert(event)

	if got := len(c.Messages()); got != 1 {
		t.Fatalf("messages = %d after duplicate delivery, want 1", got)
	}
}

func TestHandleInsertIgnoresOtherThreads(t *testing.T) {
	userID := uuid.New()
	conv, other := directConv(userID)
	store := &fakeDirectStore{conv: conv}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	c.HandleInsert(models.MessageEvent{
		Family:         models.FamilyDirect,
		ConversationID: uuid.New(), // a different thread
		Message:        models.Message{ID: uuid.New(), SenderID: other, Content: "elsewhere", CreatedAt: time.Now()},
	})
	c.HandleInsert(models.MessageEvent{
		Family:         models.FamilyOrganization, // same id, wrong family
		ConversationID: conv.ID,
		Message:        models.Message{ID: uuid.New(), SenderID: other, Content: "wrong family", CreatedAt: time.Now()},
	})

	if got := len(c.Messages()); got != 0 {
		t.Fatalf("messages = %d, want 0", got)
	}
}

func TestSendAppendsOnceWithRealtimeEcho(t *testing.T) {
	userID := uuid.New()
	conv, _ := directConv(userID)
	store := &fakeDirectStore{conv: conv}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	msg, err := c.Send("see you at practice", nil)
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}

	// the realtime echo of the sender's own message arrives afterwards
	c.HandleInsert(models.MessageEvent{Family: models.FamilyDirect, ConversationID: conv.ID, Message: *msg})

	if got := len(c.Messages()); got != 1 {
		t.Fatalf("messages = %d after echo, want 1", got)
	}
}

func TestSendRejectsEmpty(t *testing.T) {
	userID := uuid.New()
	conv, _ := directConv(userID)
	store := &fakeDirectStore{conv: conv}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if _, err := c.Send("", nil); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendFailureRestoresDraft(t *testing.T) {
	userID := uuid.New()
	conv, _ := directConv(userID)
	store := &fakeDirectStore{conv: conv, sendErr: errors.New("network down")}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	c.SetInput("draft text")
	if _, err := c.Send("draft text", nil); err == nil {
		t.Fatal("expected send error")
	}

	if got := c.Input(); got != "draft text" {
		t.Fatalf("draft after failure = %q, want restored text", got)
	}
	if got := len(c.Messages()); got != 0 {
		t.Fatalf("failed send left %d messages in the thread", got)
	}
	if c.Sending() {
		t.Fatal("sending flag stuck after failure")
	}
}

func TestSendRejectsSecondInFlight(t *testing.T) {
	userID := uuid.New()
	conv, _ := directConv(userID)
	store := &fakeDirectStore{
		conv:    conv,
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	entered := store.entered
	block := store.block

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Send("first", nil)
		done <- err
	}()

	<-entered
	if _, err := c.Send("second", nil); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	// with the first send finished, sending works again
	if _, err := c.Send("third", nil); err != nil {
		t.Fatalf("send after completion failed: %v", err)
	}
}

func TestHandleInsertIgnoredAfterClose(t *testing.T) {
	userID := uuid.New()
	conv, other := directConv(userID)
	store := &fakeDirectStore{conv: conv}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	c.Close()

	c.HandleInsert(models.MessageEvent{
		Family:         models.FamilyDirect,
		ConversationID: conv.ID,
		Message:        models.Message{ID: uuid.New(), SenderID: other, Content: "late", CreatedAt: time.Now()},
	})

	if got := len(c.Messages()); got != 0 {
		t.Fatalf("closed thread accepted %d messages", got)
	}
}

func TestGroupManagementDelegatesToStore(t *testing.T) {
	userID := uuid.New()
	creator := userID
	org := &fakeOrgStore{conv: &models.OrganizationConversation{
		ID:        uuid.New(),
		Type:      models.OrgConversationGroup,
		Name:      "Trainers",
		CreatedBy: &creator,
	}}

	c := NewController(models.FamilyOrganization, org.conv.ID, userID, nil, org, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if c.Title() != "Trainers" {
		t.Fatalf("title = %q", c.Title())
	}

	if err := c.Rename("Coaches"); err != nil {
		t.Fatalf("Rename error: %v", err)
	}
	if org.renamed != "Coaches" {
		t.Fatal("rename did not reach the store")
	}

	if err := c.Leave(); err != nil {
		t.Fatalf("Leave error: %v", err)
	}
	if org.removedID == nil || *org.removedID != userID {
		t.Fatal("leave did not remove the caller")
	}
}

func TestDirectThreadRejectsGroupOperations(t *testing.T) {
	userID := uuid.New()
	conv, _ := directConv(userID)
	store := &fakeDirectStore{conv: conv}

	c := NewController(models.FamilyDirect, conv.ID, userID, store, nil, &fakeReadMarker{}, nil, nil)
	if err := c.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if err := c.Rename("nope"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := c.RemoveMember(uuid.New()); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
