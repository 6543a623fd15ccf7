// Package filter provides the user-selectable search filters of the
// directory. A filter is a titled predicate over records, written in expr or
// JavaScript, that the user toggles on and off.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/pkg/directory"
)

// Supported expression languages
const (
	LangExpr = "expr"
	LangJS   = "js"
)

// Common errors
var (
	// ErrUnsupportedLang is returned when the language is not supported
	ErrUnsupportedLang = errors.New("unsupported expression language")
	// ErrInvalidExpression is returned when the expression does not compile
	ErrInvalidExpression = errors.New("invalid expression syntax")
	// ErrUnknownFilter is returned by Set operations naming a missing filter
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrDuplicateTitle is returned when two filters in a set share a title
	ErrDuplicateTitle = errors.New("duplicate filter title")
)

// Config describes a search filter as it appears in the site configuration.
type Config struct {
	// Icon is an icon name shown next to the title. Defaults to "".
	Icon string `json:"icon,omitempty" yaml:"icon,omitempty"`
	// Title labels the filter and identifies it within a set. Defaults to "".
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	// Selected is the initial selection state. Defaults to false.
	Selected bool `json:"selected,omitempty" yaml:"selected,omitempty"`
	// Expression is the predicate. An empty expression matches every record.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
	// Lang is "expr" (default) or "js".
	Lang string `json:"lang,omitempty" yaml:"lang,omitempty"`
	// ScriptFile points at a JavaScript file defining match(record).
	// Only valid with lang "js"; mutually exclusive with Expression.
	ScriptFile string `json:"scriptFile,omitempty" yaml:"scriptFile,omitempty"`
}

// Matcher decides whether a record passes a filter.
type Matcher interface {
	Match(ctx context.Context, record directory.Record) (bool, error)
}

// SearchFilter is a compiled filter.
type SearchFilter struct {
	Icon     string
	Title    string
	Selected bool
	Lang     string

	expression string
	matcher    Matcher
}

// New compiles a filter from cfg.
func New(cfg Config) (*SearchFilter, error) {
	lang := cfg.Lang
	if lang == "" {
		lang = LangExpr
	}

	var (
		matcher Matcher
		err     error
	)
	switch lang {
	case LangExpr:
		if cfg.ScriptFile != "" {
			return nil, fmt.Errorf("filter %q: scriptFile requires lang %q", cfg.Title, LangJS)
		}
		matcher, err = newExprMatcher(cfg.Expression)
	case LangJS:
		matcher, err = newScriptMatcher(cfg.Expression, cfg.ScriptFile)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLang, lang)
	}
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", cfg.Title, err)
	}

	logger.Debug("search filter initialized",
		slog.String("title", cfg.Title),
		slog.String("lang", lang),
		slog.Bool("selected", cfg.Selected),
		slog.Bool("from_file", cfg.ScriptFile != ""),
	)

	return &SearchFilter{
		Icon:       cfg.Icon,
		Title:      cfg.Title,
		Selected:   cfg.Selected,
		Lang:       lang,
		expression: cfg.Expression,
		matcher:    matcher,
	}, nil
}

// Expression returns the source expression.
func (f *SearchFilter) Expression() string { return f.expression }

// Match evaluates the filter against a record.
func (f *SearchFilter) Match(ctx context.Context, record directory.Record) (bool, error) {
	if f.matcher == nil {
		return true, nil
	}
	return f.matcher.Match(ctx, record)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// toBool converts an evaluation result to a boolean using loose truthiness.
func toBool(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}
