package engine

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// VisibilityEvaluator decides whether a conditional screen or field is shown
// given the answers collected so far.
type VisibilityEvaluator interface {
	Visible(condition string, formData map[string]any) bool
}

// ExprEvaluator evaluates conditions with expr-lang/expr. Form values are
// exposed both as top-level variables and under "data", so
// `employmentType == "full-time"` and `data.employmentType == "full-time"`
// are equivalent. Compiled programs are cached by expression string.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{
		cache: make(map[string]*vm.Program),
	}
}

// CompileCondition checks that a condition expression parses as a boolean
// expression. Empty conditions are valid.
func CompileCondition(condition string) error {
	if strings.TrimSpace(condition) == "" {
		return nil
	}
	_, err := compile(condition)
	return err
}

func compile(condition string) (*vm.Program, error) {
	prog, err := expr.Compile(condition, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition: %w", err)
	}
	return prog, nil
}

func (e *ExprEvaluator) program(condition string) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[condition]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}
	prog, err := compile(condition)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[condition] = prog
	e.mu.Unlock()
	return prog, nil
}

// EvaluateBool runs condition against formData.
func (e *ExprEvaluator) EvaluateBool(condition string, formData map[string]any) (bool, error) {
	prog, err := e.program(condition)
	if err != nil {
		return false, err
	}

	env := make(map[string]any, len(formData)+1)
	for k, v := range formData {
		env[k] = v
	}
	env["data"] = formData

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	isTrue, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return bool")
	}
	return isTrue, nil
}

// Visible treats an empty condition as visible. A condition that fails to
// compile or evaluate is also treated as visible.
func (e *ExprEvaluator) Visible(condition string, formData map[string]any) bool {
	if strings.TrimSpace(condition) == "" {
		return true
	}
	ok, err := e.EvaluateBool(condition, formData)
	if err != nil {
		log.Printf("WARN: visibility condition %q: %v", condition, err)
		return true
	}
	return ok
}

// alwaysVisible is used when a session has no evaluator.
type alwaysVisible struct{}

func (alwaysVisible) Visible(string, map[string]any) bool { return true }
