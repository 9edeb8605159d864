package inbox

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vereinhub/backend/internal/models"
)

// Load-cycle states
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// DirectStore is the direct-conversation slice the aggregator reads.
type DirectStore interface {
	ListForUser(userID uuid.UUID) ([]models.Conversation, error)
}

// OrgStore is the organization-conversation slice the aggregator reads.
type OrgStore interface {
	ListPinned(orgID uuid.UUID) ([]models.OrganizationConversation, error)
	ListGroupsForUser(orgID, userID uuid.UUID) ([]models.OrganizationConversation, error)
}

// MembershipStore resolves the active organization's member set.
type MembershipStore interface {
	MemberIDs(orgID uuid.UUID) (map[uuid.UUID]bool, error)
}

// Counter answers cached unread lookups (satisfied by unread.Tracker).
type Counter interface {
	Count(family models.ConversationFamily, conversationID uuid.UUID) int
}

// Aggregator merges the direct and organization conversation families into
// one ordered, sectioned list for a single user within a single organization.
// Realtime insert events patch preview fields in place; new conversations
// only appear after the next explicit Load.
type Aggregator struct {
	userID uuid.UUID
	orgID  uuid.UUID

	direct  DirectStore
	org     OrgStore
	members MembershipStore

	mu       sync.Mutex
	state    State
	pinned   []Item
	sections map[Section][]Item
	loadErr  error
}

func NewAggregator(userID, orgID uuid.UUID, direct DirectStore, org OrgStore, members MembershipStore) *Aggregator {
	return &Aggregator{
		userID:   userID,
		orgID:    orgID,
		direct:   direct,
		org:      org,
		members:  members,
		state:    StateIdle,
		sections: map[Section][]Item{},
	}
}

// State returns the current load-cycle state
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Load fetches all sources in parallel and rebuilds the list. Any source
// failing fails the whole load: a partial merge could misrepresent unread
// state, so nothing is rendered from it.
func (a *Aggregator) Load() error {
	a.mu.Lock()
	a.state = StateLoading
	a.mu.Unlock()

	var (
		wg        sync.WaitGroup
		directs   []models.Conversation
		pinned    []models.OrganizationConversation
		groups    []models.OrganizationConversation
		memberSet map[uuid.UUID]bool
		errs      [4]error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		directs, errs[0] = a.direct.ListForUser(a.userID)
	}()
	go func() {
		defer wg.Done()
		pinned, errs[1] = a.org.ListPinned(a.orgID)
	}()
	go func() {
		defer wg.Done()
		groups, errs[2] = a.org.ListGroupsForUser(a.orgID, a.userID)
	}()
	go func() {
		defer wg.Done()
		memberSet, errs[3] = a.members.MemberIDs(a.orgID)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			a.mu.Lock()
			a.state = StateError
			a.loadErr = err
			a.mu.Unlock()
			return err
		}
	}

	pinnedItems := make([]Item, 0, len(pinned))
	pinnedIDs := map[uuid.UUID]bool{}
	for i := range pinned {
		pinnedItems = append(pinnedItems, Item{Family: models.FamilyOrganization, Org: &pinned[i]})
		pinnedIDs[pinned[i].ID] = true
	}

	sections := map[Section][]Item{
		SectionOrganization: {},
		SectionMarketplace:  {},
	}

	for i := range groups {
		// the store excludes pinned types already; the id check guards
		// against overlap all the same
		if pinnedIDs[groups[i].ID] {
			continue
		}
		item := Item{Family: models.FamilyOrganization, Org: &groups[i]}
		sections[item.Section()] = append(sections[item.Section()], item)
	}

	for i := range directs {
		// hide direct threads whose counterpart is outside the active
		// organization from this org-scoped view
		counterpart := directs[i].Participant1ID
		if counterpart == a.userID {
			counterpart = directs[i].Participant2ID
		}
		if !memberSet[counterpart] {
			continue
		}
		item := Item{Family: models.FamilyDirect, Direct: &directs[i]}
		sections[item.Section()] = append(sections[item.Section()], item)
	}

	for section := range sections {
		sortByRecency(sections[section])
	}

	a.mu.Lock()
	a.pinned = pinnedItems
	a.sections = sections
	a.state = StateReady
	a.loadErr = nil
	a.mu.Unlock()

	return nil
}

// ApplyMessageEvent patches the preview fields of a conversation already in
// the list and re-sorts its section, avoiding a full reload. Events for
// conversations not in the list are ignored. Returns whether a patch was
// applied.
func (a *Aggregator) ApplyMessageEvent(event models.MessageEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateReady {
		return false
	}

	preview := event.Message.Preview()

	// pinned conversations update their preview but keep system order
	for _, item := range a.pinned {
		if item.Family == event.Family && item.ID() == event.ConversationID {
			item.setPreview(preview, event.Message.CreatedAt)
			return true
		}
	}

	for section, items := range a.sections {
		for _, item := range items {
			if item.Family == event.Family && item.ID() == event.ConversationID {
				item.setPreview(preview, event.Message.CreatedAt)
				sortByRecency(a.sections[section])
				return true
			}
		}
	}

	return false
}

// Snapshot is the rendered list: pinned first, then the two sections with
// their aggregate unread totals.
type Snapshot struct {
	State        State           `json:"state"`
	Pinned       []Item          `json:"pinned"`
	Organization []Item          `json:"organization"`
	Marketplace  []Item          `json:"marketplace"`
	Unread       map[Section]int `json:"unread"`
}

// Snapshot copies the current list state. Unread totals come from the
// caller-owned counter so a stale badge never blocks rendering.
func (a *Aggregator) Snapshot(counter Counter) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		State:        a.state,
		Pinned:       append([]Item{}, a.pinned...),
		Organization: append([]Item{}, a.sections[SectionOrganization]...),
		Marketplace:  append([]Item{}, a.sections[SectionMarketplace]...),
		Unread:       map[Section]int{SectionOrganization: 0, SectionMarketplace: 0},
	}

	if counter == nil {
		return snap
	}

	for _, item := range snap.Pinned {
		snap.Unread[SectionOrganization] += counter.Count(item.Family, item.ID())
	}
	for _, item := range snap.Organization {
		snap.Unread[SectionOrganization] += counter.Count(item.Family, item.ID())
	}
	for _, item := range snap.Marketplace {
		snap.Unread[SectionMarketplace] += counter.Count(item.Family, item.ID())
	}

	return snap
}

// sortByRecency orders items by last_message_at descending with
// no-message-yet conversations last. The sort is stable: equal timestamps
// (including both nil) keep their prior relative order.
func sortByRecency(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].LastMessageAt(), items[j].LastMessageAt()
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}
