// Package script classifies candidate artifacts and times their execution
// in an isolated JavaScript runtime.
//
// Artifacts are loaded with esbuild, which both decides whether the content
// is JavaScript at all and rewrites ES modules into a plain script. Each
// execution gets a fresh goja runtime; nothing is shared between calls, so
// a JSRunner is safe for concurrent use.
package script

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
)

//go:embed bench.js
var benchSource string

// Extensions are the file extensions a JSRunner accepts by default.
var Extensions = []string{".js", ".mjs", ".cjs"}

// JSRunner is the eligibility classifier and execution primitive for
// JavaScript artifacts.
type JSRunner struct {
	clock   clock.Clock
	logger  *slog.Logger
	exts    []string
	globals map[string]any
}

// Option configures a JSRunner.
type Option func(*JSRunner)

// WithClock sets the clock execution time is measured with.
func WithClock(c clock.Clock) Option {
	return func(r *JSRunner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *JSRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithExtensions replaces the accepted extensions. Entries are matched
// case-insensitively and must include the leading dot.
func WithExtensions(exts ...string) Option {
	return func(r *JSRunner) {
		r.exts = r.exts[:0]
		for _, e := range exts {
			r.exts = append(r.exts, strings.ToLower(e))
		}
	}
}

// WithGlobal exposes value as a global in every runtime the runner creates.
// Go functions are callable from the script.
func WithGlobal(name string, value any) Option {
	return func(r *JSRunner) {
		r.globals[name] = value
	}
}

// NewJSRunner returns a JSRunner using the wall clock.
func NewJSRunner(opts ...Option) *JSRunner {
	r := &JSRunner{
		clock:   clock.New(),
		logger:  slog.Default(),
		exts:    slices.Clone(Extensions),
		globals: make(map[string]any),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Eligible reports whether path names a JavaScript file the runner can
// execute: a known extension, an existing regular file, and content that
// parses as JavaScript. Only read failures of an existing file are errors.
func (r *JSRunner) Eligible(path string) (bool, error) {
	if !slices.Contains(r.exts, strings.ToLower(filepath.Ext(path))) {
		return false, nil
	}

	st, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: %w", ErrUnreadable, err)
	case !st.Mode().IsRegular():
		return false, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if _, err := transform(path, src); err != nil {
		r.logger.Debug("not javascript", "path", path, "err", err)
		return false, nil
	}
	return true, nil
}

// Execute runs the artifact at path once and returns its wall time,
// including compilation. Cancelling ctx interrupts the script.
func (r *JSRunner) Execute(ctx context.Context, path string) (time.Duration, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrExecution, path, err)
	}
	code, err := transform(path, src)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrExecution, path, err)
	}
	d, err := r.run(ctx, filepath.Base(path), code)
	if err != nil {
		return 0, err
	}
	r.logger.Debug("executed", "path", path, "elapsed", d)
	return d, nil
}

// Benchmark runs the built-in calibration workload once.
func (r *JSRunner) Benchmark(ctx context.Context) (time.Duration, error) {
	return r.run(ctx, "bench.js", benchSource)
}

func (r *JSRunner) run(ctx context.Context, name, code string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	vm, err := r.newRuntime()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrExecution, name, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	start := r.clock.Now()
	_, err = vm.RunScript(name, code)
	elapsed := r.clock.Since(start)
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) && ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %s: %w", ErrExecution, name, err)
	}
	return elapsed, nil
}

// newRuntime builds an isolated runtime with the browser-ish globals
// bundles commonly touch at load time. Timers are accepted but never fire.
func (r *JSRunner) newRuntime() (*goja.Runtime, error) {
	vm := goja.New()
	g := vm.GlobalObject()

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	zero := func(goja.FunctionCall) goja.Value { return vm.ToValue(0) }

	console := vm.NewObject()
	for _, m := range []string{"log", "info", "warn", "error", "debug", "trace"} {
		if err := console.Set(m, noop); err != nil {
			return nil, err
		}
	}
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}

	builtins := map[string]any{
		"window":         g,
		"self":           g,
		"global":         g,
		"console":        console,
		"module":         module,
		"exports":        exports,
		"setTimeout":     zero,
		"setInterval":    zero,
		"clearTimeout":   noop,
		"clearInterval":  noop,
		"queueMicrotask": noop,
	}
	for k, v := range builtins {
		if err := g.Set(k, v); err != nil {
			return nil, err
		}
	}
	for k, v := range r.globals {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}
	return vm, nil
}

// transform parses src as JavaScript and rewrites it into a script goja
// can run. Parse errors are returned with esbuild's first message.
func transform(path string, src []byte) (string, error) {
	res := api.Transform(string(src), api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatIIFE,
		Target:     api.ES2017,
		Sourcefile: path,
		LogLevel:   api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		m := res.Errors[0]
		if m.Location != nil {
			return "", fmt.Errorf("%s:%d:%d: %s", path, m.Location.Line, m.Location.Column, m.Text)
		}
		return "", fmt.Errorf("%s: %s", path, m.Text)
	}
	return string(res.Code), nil
}
