// Package filter evaluates the optional REPLY_SKIP_RULE expression against incoming posts.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/persona-bot/internal/persona"
	"github.com/bakkerme/persona-bot/internal/platform"
)

// Rule is a compiled boolean expression; a true result means "do not reply".
//
// Available fields:
//
//	text.value, text.length   post body and its length in characters
//	author, author_id         lowercase handle and numeric id of the poster
//	context                   "mention" or "tracked"
//	created_at                post creation time
//
// Example: `text.length < 3 || author in ["spambot", "rival"]`.
type Rule struct {
	source  string
	program *vm.Program
}

// Compile parses source. An empty source yields a nil Rule that never skips.
func Compile(source string) (*Rule, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(ruleEnv(platform.Post{}, persona.ContextMention)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile skip rule: %w", err)
	}
	return &Rule{source: source, program: program}, nil
}

func (r *Rule) String() string {
	if r == nil {
		return ""
	}
	return r.source
}

func (r *Rule) Skip(post platform.Post, replyContext persona.Context) (bool, error) {
	if r == nil {
		return false, nil
	}
	result, err := expr.Run(r.program, ruleEnv(post, replyContext))
	if err != nil {
		return false, fmt.Errorf("evaluate skip rule: %w", err)
	}
	skip, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("skip rule did not return bool")
	}
	return skip, nil
}

func ruleEnv(post platform.Post, replyContext persona.Context) map[string]interface{} {
	createdAt := post.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Unix(0, 0).UTC()
	}
	return map[string]interface{}{
		"text": map[string]interface{}{
			"value":  post.Text,
			"length": len([]rune(post.Text)),
		},
		"author":     platform.NormalizeUsername(post.AuthorUsername),
		"author_id":  post.AuthorID,
		"context":    replyContext.String(),
		"created_at": createdAt,
	}
}
