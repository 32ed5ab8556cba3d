package store

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	apperrors "github.com/hrygo/saga/internal/errors"
)

// EntryFilter evaluates a compiled CEL expression against entries.
//
// Available variables: id, title, content, summary, date (strings),
// eligible and has_embedding (bools). Dates compare lexically, which
// orders correctly for ISO-8601 values.
type EntryFilter struct {
	program cel.Program
}

var entryFilterEnv = mustEntryFilterEnv()

func mustEntryFilterEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("summary", cel.StringType),
		cel.Variable("date", cel.StringType),
		cel.Variable("eligible", cel.BoolType),
		cel.Variable("has_embedding", cel.BoolType),
	)
	if err != nil {
		panic(err)
	}
	return env
}

// NewEntryFilter compiles expr. Syntax errors and non-boolean expressions
// are reported as InvalidArgument.
func NewEntryFilter(expr string) (*EntryFilter, error) {
	ast, issues := entryFilterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, apperrors.InvalidArgument("invalid filter: " + issues.Err().Error())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, apperrors.InvalidArgument("filter must be a boolean expression")
	}
	program, err := entryFilterEnv.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build filter program")
	}
	return &EntryFilter{program: program}, nil
}

// Match reports whether the entry satisfies the filter. Evaluation errors
// are reported as InvalidArgument.
func (f *EntryFilter) Match(entry *Entry) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"id":            entry.ID,
		"title":         entry.Title,
		"content":       entry.Content,
		"summary":       entry.Summary,
		"date":          entry.Date,
		"eligible":      entry.Eligible,
		"has_embedding": entry.HasEmbedding(),
	})
	if err != nil {
		appErr := apperrors.InvalidArgument("filter failed on entry " + entry.ID + ": " + err.Error())
		appErr.Cause = err
		return false, appErr
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, apperrors.InvalidArgument(fmt.Sprintf("filter returned %T, want bool", out.Value()))
	}
	return matched, nil
}
