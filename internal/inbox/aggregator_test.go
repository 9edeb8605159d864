package inbox

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

type fakeDirectStore struct {
	convs []models.Conversation
	err   error
}

func (f *fakeDirectStore) ListForUser(userID uuid.UUID) ([]models.Conversation, error) {
	return f.convs, f.err
}

type fakeOrgStore struct {
	pinned []models.OrganizationConversation
	groups []models.OrganizationConversation
	err    error
}

func (f *fakeOrgStore) ListPinned(orgID uuid.UUID) ([]models.OrganizationConversation, error) {
	return f.pinned, f.err
}

func (f *fakeOrgStore) ListGroupsForUser(orgID, userID uuid.UUID) ([]models.OrganizationConversation, error) {
	return f.groups, f.err
}

type fakeMembershipStore struct {
	members map[uuid.UUID]bool
	err     error
}

func (f *fakeMembershipStore) MemberIDs(orgID uuid.UUID) (map[uuid.UUID]bool, error) {
	return f.members, f.err
}

type fakeCounter struct {
	counts map[uuid.UUID]int
}

func (f *fakeCounter) Count(family models.ConversationFamily, conversationID uuid.UUID) int {
	return f.counts[conversationID]
}

func ts(offset time.Duration) *time.Time {
	t := time.Unix(1700000000, 0).Add(offset)
	return &t
}

func TestAggregatorLoadMergesAndSorts(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	member := uuid.New()

	allMembers := models.OrganizationConversation{
		ID: uuid.New(), Type: models.OrgConversationAllMembers, Name: "All members",
		LastMessageAt: ts(0),
	}
	boardAdmin := models.OrganizationConversation{
		ID: uuid.New(), Type: models.OrgConversationBoardAdmin, Name: "Board & admins",
	}
	groupOld := models.OrganizationConversation{
		ID: uuid.New(), Type: models.OrgConversationGroup, Name: "Trainers",
		LastMessageAt: ts(1 * time.Hour),
	}
	groupNew := models.OrganizationConversation{
		ID: uuid.New(), Type: models.OrgConversationGroup, Name: "Festival",
		LastMessageAt: ts(3 * time.Hour),
	}
	groupSilent := models.OrganizationConversation{
		ID: uuid.New(), Type: models.OrgConversationGroup, Name: "New group",
	}

	listingID := uuid.New()
	directGeneral := models.Conversation{
		ID: uuid.New(), Participant1ID: userID, Participant2ID: member,
		LastMessageAt: ts(2 * time.Hour),
	}
	directListing := models.Conversation{
		ID: uuid.New(), Participant1ID: member, Participant2ID: userID,
		ListingID: &listingID, LastMessageAt: ts(4 * time.Hour),
	}

	agg := NewAggregator(userID, orgID,
		&fakeDirectStore{convs: []models.Conversation{directGeneral, directListing}},
		&fakeOrgStore{
			pinned: []models.OrganizationConversation{allMembers, boardAdmin},
			groups: []models.OrganizationConversation{groupOld, groupNew, groupSilent},
		},
		&fakeMembershipStore{members: map[uuid.UUID]bool{userID: true, member: true}},
	)

	if agg.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", agg.State())
	}
	if err := agg.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if agg.State() != StateReady {
		t.Fatalf("state after load = %s, want ready", agg.State())
	}

	snap := agg.Snapshot(nil)

	// pinned keep system order regardless of recency
	if len(snap.Pinned) != 2 {
		t.Fatalf("pinned count = %d, want 2", len(snap.Pinned))
	}
	if snap.Pinned[0].ID() != allMembers.ID || snap.Pinned[1].ID() != boardAdmin.ID {
		t.Fatal("pinned conversations out of system order")
	}

	// organization section: newest first, no-message conversations last
	wantOrg := []uuid.UUID{groupNew.ID, directGeneral.ID, groupOld.ID, groupSilent.ID}
	if len(snap.Organization) != len(wantOrg) {
		t.Fatalf("organization section size = %d, want %d", len(snap.Organization), len(wantOrg))
	}
	for i, want := range wantOrg {
		if snap.Organization[i].ID() != want {
			t.Fatalf("organization[%d] = %s, want %s", i, snap.Organization[i].ID(), want)
		}
	}

	// listing-linked direct threads land in marketplace
	if len(snap.Marketplace) != 1 || snap.Marketplace[0].ID() != directListing.ID {
		t.Fatalf("marketplace section = %v", snap.Marketplace)
	}
}

func TestAggregatorHidesCounterpartsOutsideOrganization(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	insider := uuid.New()
	outsider := uuid.New()

	inConv := models.Conversation{ID: uuid.New(), Participant1ID: userID, Participant2ID: insider, LastMessageAt: ts(0)}
	outConv := models.Conversation{ID: uuid.New(), Participant1ID: outsider, Participant2ID: userID, LastMessageAt: ts(time.Hour)}

	agg := NewAggregator(userID, orgID,
		&fakeDirectStore{convs: []models.Conversation{inConv, outConv}},
		&fakeOrgStore{},
		&fakeMembershipStore{members: map[uuid.UUID]bool{userID: true, insider: true}},
	)
	if err := agg.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	snap := agg.Snapshot(nil)
	if len(snap.Organization) != 1 || snap.Organization[0].ID() != inConv.ID {
		t.Fatalf("expected only the in-org thread, got %v", snap.Organization)
	}
}

func TestAggregatorWholeLoadFailsOnAnySource(t *testing.T) {
	agg := NewAggregator(uuid.New(), uuid.New(),
		&fakeDirectStore{convs: []models.Conversation{{ID: uuid.New()}}},
		&fakeOrgStore{err: errors.New("db down")},
		&fakeMembershipStore{members: map[uuid.UUID]bool{}},
	)

	if err := agg.Load(); err == nil {
		t.Fatal("expected load error")
	}
	if agg.State() != StateError {
		t.Fatalf("state = %s, want error", agg.State())
	}

	// nothing from the partial load is rendered
	snap := agg.Snapshot(nil)
	if len(snap.Pinned)+len(snap.Organization)+len(snap.Marketplace) != 0 {
		t.Fatal("partial load produced visible items")
	}
}

func TestApplyMessageEventPatchesAndResorts(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	member := uuid.New()

	older := models.Conversation{ID: uuid.New(), Participant1ID: userID, Participant2ID: member, LastMessageAt: ts(0)}
	newer := models.Conversation{ID: uuid.New(), Participant1ID: userID, Participant2ID: member, LastMessageAt: ts(time.Hour)}

	agg := NewAggregator(userID, orgID,
		&fakeDirectStore{convs: []models.Conversation{older, newer}},
		&fakeOrgStore{},
		&fakeMembershipStore{members: map[uuid.UUID]bool{userID: true, member: true}},
	)
	if err := agg.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	// a new message in the older thread moves it to the top
	patched := agg.ApplyMessageEvent(models.MessageEvent{
		Family:         models.FamilyDirect,
		ConversationID: older.ID,
		Message: models.Message{
			ID:             uuid.New(),
			ConversationID: older.ID,
			SenderID:       member,
			Content:        "are you coming?",
			CreatedAt:      *ts(2 * time.Hour),
		},
	})
	if !patched {
		t.Fatal("event for a listed conversation was not applied")
	}

	snap := agg.Snapshot(nil)
	if snap.Organization[0].ID() != older.ID {
		t.Fatal("patched thread did not move to the top of its section")
	}
	if got := *snap.Organization[0].Direct.LastMessage; got != "are you coming?" {
		t.Fatalf("preview = %q", got)
	}

	// events for unknown conversations are ignored, never inserted
	if agg.ApplyMessageEvent(models.MessageEvent{
		Family:         models.FamilyDirect,
		ConversationID: uuid.New(),
		Message:        models.Message{ID: uuid.New(), CreatedAt: time.Now()},
	}) {
		t.Fatal("event for an unknown conversation was applied")
	}
	if got := len(agg.Snapshot(nil).Organization); got != 2 {
		t.Fatalf("section size changed to %d after unknown event", got)
	}
}

func TestApplyMessageEventImageOnlyPreview(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	member := uuid.New()

	conv := models.Conversation{ID: uuid.New(), Participant1ID: userID, Participant2ID: member}
	agg := NewAggregator(userID, orgID,
		&fakeDirectStore{convs: []models.Conversation{conv}},
		&fakeOrgStore{},
		&fakeMembershipStore{members: map[uuid.UUID]bool{userID: true, member: true}},
	)
	if err := agg.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	bucket, path := "chat-images", "conv/pic.jpg"
	agg.ApplyMessageEvent(models.MessageEvent{
		Family:         models.FamilyDirect,
		ConversationID: conv.ID,
		Message: models.Message{
			ID:          uuid.New(),
			SenderID:    member,
			ImageBucket: &bucket,
			ImagePath:   &path,
			CreatedAt:   time.Now(),
		},
	})

	snap := agg.Snapshot(nil)
	if got := *snap.Organization[0].Direct.LastMessage; got != models.ImagePreviewPlaceholder {
		t.Fatalf("image-only preview = %q, want %q", got, models.ImagePreviewPlaceholder)
	}
}

func TestApplyMessageEventIgnoredBeforeReady(t *testing.T) {
	agg := NewAggregator(uuid.New(), uuid.New(), &fakeDirectStore{}, &fakeOrgStore{}, &fakeMembershipStore{})
	if agg.ApplyMessageEvent(models.MessageEvent{ConversationID: uuid.New()}) {
		t.Fatal("event applied before first load")
	}
}

func TestSnapshotUnreadTotalsPerSection(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	member := uuid.New()
	listingID := uuid.New()

	pinned := models.OrganizationConversation{ID: uuid.New(), Type: models.OrgConversationAllMembers}
	group := models.OrganizationConversation{ID: uuid.New(), Type: models.OrgConversationGroup, LastMessageAt: ts(0)}
	market := models.Conversation{ID: uuid.New(), Participant1ID: userID, Participant2ID: member, ListingID: &listingID, LastMessageAt: ts(0)}

	agg := NewAggregator(userID, orgID,
		&fakeDirectStore{convs: []models.Conversation{market}},
		&fakeOrgStore{
			pinned: []models.OrganizationConversation{pinned},
			groups: []models.OrganizationConversation{group},
		},
		&fakeMembershipStore{members: map[uuid.UUID]bool{userID: true, member: true}},
	)
	if err := agg.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	counter := &fakeCounter{counts: map[uuid.UUID]int{
		pinned.ID: 1,
		group.ID:  2,
		market.ID: 5,
	}}

	snap := agg.Snapshot(counter)
	if got := snap.Unread[SectionOrganization]; got != 3 {
		t.Fatalf("organization unread = %d, want 3", got)
	}
	if got := snap.Unread[SectionMarketplace]; got != 5 {
		t.Fatalf("marketplace unread = %d, want 5", got)
	}
}
