package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/qbit-dedup/qbittorrent"
)

// ExprFilter represents a compiled expr filter evaluated against torrents
type ExprFilter struct {
	program *vm.Program
	expr    string
}

// CompileExprFilter compiles an expr filter expression. The expression must
// evaluate to a boolean.
func CompileExprFilter(expression string) (*ExprFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
			Position:   -1,
		}
	}

	// Type-check against an empty torrent so unknown fields fail at startup
	program, err := expr.Compile(expression,
		expr.Env(torrentEnv(qbittorrent.Entry{})),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     err.Error(),
			Position:   -1,
			Err:        err,
		}
	}

	return &ExprFilter{
		program: program,
		expr:    expression,
	}, nil
}

// Match evaluates the filter against a torrent
func (f *ExprFilter) Match(entry qbittorrent.Entry) (bool, error) {
	result, err := expr.Run(f.program, torrentEnv(entry))
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expr,
			Hash:       entry.Hash,
			Name:       entry.Name,
			Reason:     err.Error(),
			Err:        err,
		}
	}

	matched, ok := result.(bool)
	if !ok {
		return false, &EvaluationError{
			Expression: f.expr,
			Hash:       entry.Hash,
			Name:       entry.Name,
			Reason:     fmt.Sprintf("expression returned %T, want bool", result),
		}
	}
	return matched, nil
}

// String returns the original expression
func (f *ExprFilter) String() string {
	return f.expr
}

func torrentEnv(entry qbittorrent.Entry) map[string]any {
	return map[string]any{
		// Torrent properties
		"Hash":        entry.Hash,
		"Name":        entry.Name,
		"SavePath":    entry.SavePath,
		"ContentPath": entry.ContentPath,
		"AddedOn":     entry.AddedOn,
		"Category":    entry.Category,
		"Tags":        entry.Tags,
		"State":       entry.State,
		"Size":        entry.Size,

		// Tag helpers
		"hasTag": entry.HasTag,
		"isSeeding": func() bool {
			return entry.IsActivelySeeding()
		},

		// Date helpers
		"daysSince": func(t time.Time) int {
			return int(time.Since(t).Hours() / 24)
		},
		"daysAgo": func(days int) time.Time {
			return time.Now().AddDate(0, 0, -days)
		},

		// String helpers
		"contains": func(str, substr string) bool {
			return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
		},
		"startsWith": func(str, prefix string) bool {
			return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
		},
		"endsWith": func(str, suffix string) bool {
			return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,

		// Size helpers
		"GiB": func(n int) int64 {
			return int64(n) << 30
		},

		"now": time.Now,
	}
}
