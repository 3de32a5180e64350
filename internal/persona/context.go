package persona

import (
	"fmt"
	"strings"
)

// Context tells the generator why the bot is replying.
type Context int

const (
	ContextMention Context = iota + 1
	ContextTracked
)

func (c Context) String() string {
	switch c {
	case ContextMention:
		return "mention"
	case ContextTracked:
		return "tracked"
	default:
		return fmt.Sprintf("context(%d)", int(c))
	}
}

func ParseContext(raw string) (Context, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mention":
		return ContextMention, nil
	case "tracked":
		return ContextTracked, nil
	default:
		return 0, fmt.Errorf("unknown reply context %q", raw)
	}
}
