// Package correlation links supervisor-channel messages back to their
// originating support conversation. Outbound escalations carry a bracketed
// tag with the conversation id; inbound supervisor text is resolved by tag
// first, then by the last conversation forwarded to that supervisor (or to
// the shared channel), so natural multi-turn replies need not repeat it.
package correlation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var tagPattern = regexp.MustCompile(`\[#CW(\d+)\]`)

// SharedChannel is the fallback identity for the shared supervisor channel.
const SharedChannel = ""

// Tag renders the correlation tag for a conversation id.
func Tag(conversationID string) string {
	return fmt.Sprintf("[#CW%s]", conversationID)
}

// Extract returns the conversation id of the first tag in text, if any.
func Extract(text string) (string, bool) {
	m := tagPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Strip removes every tag from text without leaving whitespace artifacts.
func Strip(text string) string {
	out := tagPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(out), " ")
}

// Tagger remembers, per supervisor identity, the conversation most recently
// forwarded, and resolves inbound supervisor text to a conversation id.
// Updates are opportunistic: they happen outside any conversation lock and
// only need to be best-effort.
type Tagger struct {
	mu   sync.RWMutex
	last map[string]string
}

// NewTagger creates an empty Tagger.
func NewTagger() *Tagger {
	return &Tagger{last: make(map[string]string)}
}

// Remember records conversationID as the latest forwarded conversation for
// the given supervisor identity. Forwarders use SharedChannel; per-identity
// entries are added as supervisors reply.
func (t *Tagger) Remember(identity, conversationID string) {
	if conversationID == "" {
		return
	}
	t.mu.Lock()
	t.last[identity] = conversationID
	t.mu.Unlock()
}

// Resolve maps inbound supervisor text to a conversation id: embedded tag
// first, then the identity's last conversation, then the shared channel's.
func (t *Tagger) Resolve(identity, text string) (string, bool) {
	if id, ok := Extract(text); ok {
		return id, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id := t.last[identity]; id != "" {
		return id, true
	}
	if id := t.last[SharedChannel]; id != "" {
		return id, true
	}
	return "", false
}
