package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/deskbridge/deskbridge/internal/correlation"
)

// Supervisor commands are prefix-matched on the raw tagged text and
// consumed: they never propagate as learned answers or customer replies.
var expireCommand = regexp.MustCompile(`^\+(?:expiro|expire)\b`)

// handleCommand runs a supervisor command against the correlated
// conversation. It reports whether the text was consumed as a command; text
// starting with "+" that matches no known command falls through and is
// treated as a normal reply.
func (o *Orchestrator) handleCommand(ctx context.Context, conversationID, raw string) (bool, error) {
	cmd := strings.TrimSpace(raw)
	if !strings.HasPrefix(cmd, "+") {
		return false, nil
	}
	prefix := expireCommand.FindString(cmd)
	if prefix == "" {
		return false, nil
	}
	arg := strings.TrimSpace(correlation.Strip(strings.TrimPrefix(cmd, prefix)))
	count, err := o.learned.MarkExpired(ctx, conversationID, arg, o.now())
	if err != nil {
		return true, fmt.Errorf("expire learned entries: %w", err)
	}
	note := fmt.Sprintf("Expirado(s) %d registro(s) por +expiro", count)
	if arg != "" {
		note += fmt.Sprintf(" (%q)", arg)
	}
	note += "."
	return true, o.platform.PostPrivate(ctx, conversationID, note)
}
