package botcmd

import "sync"

// pendingKind says what the next plain message from a chat means.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingEditInstruction
	pendingTimes
	pendingTopics
)

type pendingInput struct {
	Kind pendingKind
	// PostID is set for edit instructions so the reply can be applied to
	// the right draft.
	PostID string
	// PreviewMessageID is the draft preview to refresh after the edit.
	PreviewMessageID int64
	PreviewHasPhoto  bool
}

// pendingTable tracks one awaited input per chat. A new expectation
// replaces the old one.
type pendingTable struct {
	mu sync.Mutex
	m  map[int64]pendingInput
}

func newPendingTable() *pendingTable {
	return &pendingTable{m: make(map[int64]pendingInput)}
}

func (t *pendingTable) set(chatID int64, p pendingInput) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[chatID] = p
}

// pop removes and returns the pending input for the chat, if any.
func (t *pendingTable) pop(chatID int64) (pendingInput, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.m[chatID]
	if ok {
		delete(t.m, chatID)
	}
	return p, ok
}

func (t *pendingTable) clear(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, chatID)
}
