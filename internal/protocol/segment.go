// Package protocol parses the status protocol that the dialogue model embeds
// in each assistant utterance: delimiter-separated status segments followed
// by the reply shown to the user.
package protocol

import "strings"

// DefaultDelimiter separates status segments from each other and from the reply.
const DefaultDelimiter = '~'

// Turn is one assistant utterance split into its protocol parts.
type Turn struct {
	// Segments holds the raw status segments in the order they appeared.
	Segments []string
	// Reply is the text after the last delimiter.
	Reply string
	// ReplyFallback is set when the text after the last delimiter was blank
	// and Reply holds the whole utterance instead.
	ReplyFallback bool
}

// Segment splits utterance on delim. Without a delimiter the whole utterance
// is the reply and there are no segments.
func Segment(utterance string, delim rune) Turn {
	parts := strings.Split(utterance, string(delim))
	last := len(parts) - 1

	turn := Turn{Reply: parts[last]}
	if last > 0 {
		turn.Segments = append([]string(nil), parts[:last]...)
	}
	if strings.TrimSpace(turn.Reply) == "" && last > 0 {
		turn.Reply = utterance
		turn.ReplyFallback = true
	}
	return turn
}

// Join rebuilds the utterance a Turn was segmented from. It is the inverse
// of Segment whenever the reply was not a fallback.
func Join(t Turn, delim rune) string {
	if t.ReplyFallback {
		return t.Reply
	}
	parts := make([]string, 0, len(t.Segments)+1)
	parts = append(parts, t.Segments...)
	parts = append(parts, t.Reply)
	return strings.Join(parts, string(delim))
}
