package inbox

import (
	"fmt"
	"sort"
	"strings"
)

// PromptBlockHeader is the sentinel first line of an injected inbox block.
// It is a fixed token, not prose, so downstream consumers can detect and
// strip injected blocks programmatically.
const PromptBlockHeader = "[A2A_INBOX_V1] Messages from other agent sessions:"

// DefaultMaxEvents and DefaultMaxChars bound a rendered prompt block.
const (
	DefaultMaxEvents = 3
	DefaultMaxChars  = 500
)

// PromptBlock is the rendered injection and its bookkeeping. IncludedRunIDs
// is the exact set the caller must mark delivered; an event selected but cut
// before its metadata was emitted is not in it.
type PromptBlock struct {
	Text           string
	IncludedRunIDs []string
	Truncated      bool
}

// BuildPromptBlock renders candidate events into a bounded prompt block.
//
// Events are ordered by (createdAt, runId) so concurrent producers sharing a
// timestamp still render deterministically, then capped at maxEvents. The
// character budget covers the whole text including the header; when one
// event's reply would overflow, the reply alone is cut to the remaining
// budget minus three and suffixed with an ellipsis, the metadata is never
// split.
func BuildPromptBlock(events []Event, maxEvents, maxChars int) PromptBlock {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].RunID < sorted[j].RunID
	})

	block := PromptBlock{}
	selected := sorted
	if len(selected) > maxEvents {
		selected = selected[:maxEvents]
		block.Truncated = true
	}

	var sb strings.Builder
	budget := maxChars

	header := []rune(PromptBlockHeader)
	if len(header) > budget {
		header = header[:budget]
		block.Truncated = true
	}
	sb.WriteString(string(header))
	budget -= len(header)

	for _, ev := range selected {
		label := ev.SourceDisplayKey
		if label == "" {
			label = ev.SourceSessionKey
		}
		meta := fmt.Sprintf("\n- %s (%s) [%s]: ", label, ev.SourceSessionKey, ev.RunID)
		metaLen := len([]rune(meta))
		reply := []rune(ev.ReplyText)

		if metaLen+len(reply) <= budget {
			sb.WriteString(meta)
			sb.WriteString(ev.ReplyText)
			budget -= metaLen + len(reply)
			block.IncludedRunIDs = append(block.IncludedRunIDs, ev.RunID)
			continue
		}

		// The full record does not fit. Cut within the reply text if there
		// is room for the metadata plus a non-empty truncated reply;
		// otherwise drop the record entirely.
		textBudget := budget - metaLen - 3
		if textBudget > 0 {
			sb.WriteString(meta)
			sb.WriteString(string(reply[:min(textBudget, len(reply))]))
			sb.WriteString("...")
			block.IncludedRunIDs = append(block.IncludedRunIDs, ev.RunID)
		}
		block.Truncated = true
		break
	}

	block.Text = sb.String()
	return block
}
