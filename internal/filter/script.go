package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/dop251/goja"

	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/internal/pathutil"
	"github.com/gscoppino/STEM/pkg/directory"
)

// MaxScriptLength is the maximum allowed script length in bytes (100KB)
const MaxScriptLength = 100 * 1024

// matchFunctionName is the function a script file must define.
const matchFunctionName = "match"

// Script errors
var (
	ErrScriptTooLong    = errors.New("script exceeds maximum length")
	ErrMissingMatchFunc = errors.New("match function not found in script")
	ErrScriptAndFile    = errors.New("cannot specify both expression and scriptFile")
)

// scriptMatcher runs JavaScript with goja. Inline expressions are wrapped in
// a function of record; script files define match(record) themselves.
//
// A goja runtime is not goroutine-safe, so calls are serialized.
type scriptMatcher struct {
	mu      sync.Mutex
	runtime *goja.Runtime
	fn      goja.Callable
}

func newScriptMatcher(expression, scriptFile string) (Matcher, error) {
	if !isBlank(expression) && scriptFile != "" {
		return nil, ErrScriptAndFile
	}

	var source string
	switch {
	case scriptFile != "":
		content, err := readScriptFile(scriptFile)
		if err != nil {
			return nil, err
		}
		source = content
	case isBlank(expression):
		return nil, nil
	default:
		source = fmt.Sprintf("function %s(record) {\n  return (%s);\n}", matchFunctionName, expression)
	}

	if len(source) > MaxScriptLength {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrScriptTooLong, len(source), MaxScriptLength)
	}

	runtime := goja.New()
	runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if _, err := runtime.RunString(source); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	fn, ok := goja.AssertFunction(runtime.Get(matchFunctionName))
	if !ok {
		return nil, ErrMissingMatchFunc
	}

	return &scriptMatcher{runtime: runtime, fn: fn}, nil
}

// readScriptFile reads a validated script path with a size cap.
func readScriptFile(path string) (string, error) {
	if err := pathutil.ValidateFilePath(path); err != nil {
		return "", fmt.Errorf("invalid scriptFile: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open script file %q: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Warn("failed to close script file",
				slog.String("file", path),
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	content, err := io.ReadAll(io.LimitReader(file, MaxScriptLength+1))
	if err != nil {
		return "", fmt.Errorf("failed to read script file %q: %w", path, err)
	}
	if len(content) > MaxScriptLength {
		return "", fmt.Errorf("%w: script file %q is larger than %d bytes", ErrScriptTooLong, path, MaxScriptLength)
	}
	return string(content), nil
}

func (m *scriptMatcher) Match(ctx context.Context, record directory.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Interrupt long-running scripts when ctx is cancelled. The interrupt
	// must have landed before it is cleared, or it leaks into the next call.
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		m.runtime.Interrupt(ctx.Err().Error())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
		m.runtime.ClearInterrupt()
	}()

	result, err := m.fn(goja.Undefined(), m.runtime.ToValue(map[string]interface{}(record)))
	if err != nil {
		return false, err
	}
	return result.ToBoolean(), nil
}
