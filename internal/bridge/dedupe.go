package bridge

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/deskbridge/deskbridge/internal/conversation"
)

// ShortcutHuman is the customer "request human" shortcut kind.
const ShortcutHuman = "human"

// Fingerprint builds a stable dedupe key for an inbound event so that a
// shortcut fires at most once per delivery of the same event. The upstream
// transport redelivers at least once; the id alone is not trusted to be
// present, so the normalized content and kind are folded in.
func Fingerprint(eventID, normalizedText, kind string) string {
	sum := sha1.Sum([]byte(eventID + "|" + normalizedText + "|" + kind))
	return hex.EncodeToString(sum[:])
}

// shouldFireShortcut decides whether a shortcut of the given kind may fire
// now, and records the fire on the state when it may. A repeat of the same
// dedupe key never fires; the same kind within the cooldown window never
// fires.
func shouldFireShortcut(st *conversation.State, kind, key string, now time.Time, cooldown time.Duration) bool {
	last := st.LastShortcut
	if last != nil && last.DedupeKey == key {
		return false
	}
	if last != nil && last.Kind == kind && now.Sub(last.FiredAt) < cooldown {
		return false
	}
	st.LastShortcut = &conversation.ShortcutFire{Kind: kind, FiredAt: now, DedupeKey: key}
	return true
}
