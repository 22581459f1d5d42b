// Package expreval compiles and caches the small expression language used
// for content-based partitioning, and evaluates it against a bound envelope
// and tag map.
package expreval

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/fixprotocol"
)

// ifElseStatement matches the "if (cond) { return a; } else { return b; }"
// statement form the configuration language allows. expr-lang's grammar is
// expression-only, so this form is rewritten to a ternary before
// compilation; everything else (arithmetic, comparison, ternary, member
// access, string concatenation) is already native expr-lang syntax.
var ifElseStatement = regexp.MustCompile(`(?s)^\s*if\s*\((.*)\)\s*\{\s*return\s+(.*?);?\s*\}\s*else\s*\{\s*return\s+(.*?);?\s*\}\s*$`)

// translateStatementForm rewrites the if/else/return statement form into a
// plain ternary expression; any other input passes through unchanged.
func translateStatementForm(exprStr string) string {
	m := ifElseStatement.FindStringSubmatch(exprStr)
	if m == nil {
		return exprStr
	}
	cond, thenExpr, elseExpr := m[1], m[2], m[3]
	return fmt.Sprintf("(%s) ? (%s) : (%s)", cond, thenExpr, elseExpr)
}

// Evaluator compiles expression strings on first use and caches the result
// for the lifetime of the process. Safe for concurrent insert-or-get.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New returns an empty, ready-to-use Evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// CacheSize reports the number of distinct expressions compiled so far,
// for the expression_cache_size gauge.
func (ev *Evaluator) CacheSize() int {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	return len(ev.cache)
}

// PreCompile compiles expr and stores it in the cache if not already
// present, without evaluating it. A compile error is returned to the caller
// but does not panic; callers at load time log it and continue rather than
// treating it as fatal.
func (ev *Evaluator) PreCompile(exprStr string) error {
	_, err := ev.compileOrGet(exprStr)
	return err
}

func (ev *Evaluator) compileOrGet(exprStr string) (*vm.Program, error) {
	ev.mu.RLock()
	program, ok := ev.cache[exprStr]
	ev.mu.RUnlock()
	if ok {
		return program, nil
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	// Re-check: another goroutine may have compiled it while we waited for
	// the write lock.
	if program, ok = ev.cache[exprStr]; ok {
		return program, nil
	}

	compiled, err := expr.Compile(translateStatementForm(exprStr), expr.Env(Bindings{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", domain.ErrEvaluation, exprStr, err)
	}
	ev.cache[exprStr] = compiled
	return compiled, nil
}

// Bindings is the variable set exposed to compiled expressions: every
// envelope field by its JSON name, the whole envelope, per-tag symbolic and
// Tag<N> names, and the parsedTags map.
type Bindings map[string]any

// Bind constructs the variable set for evaluating against envelope e with
// fallback tag map tags (used only when e.ParsedTags is empty).
func Bind(e *domain.Envelope, tags map[int]string) Bindings {
	effectiveTags := tags
	if e != nil {
		effectiveTags = e.EffectiveParsedTags(tags)
	}

	b := Bindings{}
	if e != nil {
		b["sessionId"] = e.SessionID
		b["senderCompId"] = e.SenderCompID
		b["targetCompId"] = e.TargetCompID
		b["msgType"] = e.MsgType
		b["clOrdID"] = e.ClOrdID
		b["symbol"] = e.Symbol
		b["side"] = e.Side
		b["createdTimestamp"] = e.CreatedTimestamp
		b["rawMessage"] = string(e.RawMessage)
		if e.OrderQty != nil {
			b["orderQty"], _ = e.OrderQty.Float64()
		}
		if e.Price != nil {
			b["price"], _ = e.Price.Float64()
		}
		b["envelope"] = e
	}

	parsedTags := map[int]string{}
	for tag, value := range effectiveTags {
		parsedTags[tag] = value
		b[fmt.Sprintf("Tag%d", tag)] = value
		if name, ok := fixprotocol.SymbolicName(tag); ok {
			b[name] = value
		}
	}
	b["parsedTags"] = parsedTags

	return b
}

// Evaluate compiles (on cache miss) and runs exprStr against the bound
// envelope/tag context, returning the raw result value. A compile or
// execution error is fatal for the calling record: it wraps domain.ErrEvaluation.
func (ev *Evaluator) Evaluate(exprStr string, e *domain.Envelope, tags map[int]string) (any, error) {
	program, err := ev.compileOrGet(exprStr)
	if err != nil {
		return nil, err
	}

	// The program was compiled against a string-keyed map environment, and
	// expr's fast map lookup asserts the plain map[string]any type at run
	// time, so the named Bindings type is converted here.
	result, err := expr.Run(program, map[string]any(Bind(e, tags)))
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate %q: %v", domain.ErrEvaluation, exprStr, err)
	}
	return result, nil
}

// EvaluatePartitionExpression is a thin wrapper over Evaluate for the
// partitioning call sites: a nil result is treated as "no key" rather than
// an error, and is logged by the caller.
func (ev *Evaluator) EvaluatePartitionExpression(exprStr string, e *domain.Envelope, tags map[int]string) (any, error) {
	if exprStr == "" {
		return nil, nil
	}
	result, err := ev.Evaluate(exprStr, e, tags)
	if err != nil {
		return nil, err
	}
	return result, nil
}
