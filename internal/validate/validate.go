// Package validate implements the shared four-layer Config Validator
// (C3): schema, format, business-rule, and live-API checks, short-
// circuiting on the first layer that produces errors.
package validate

import (
	"context"
	"fmt"
)

// Result accumulates the errors and warnings produced by a Report.
type Result struct {
	Errors   []string
	Warnings []string
}

func (r *Result) addError(format string, args ...interface{})   { r.Errors = append(r.Errors, fmt.Sprintf(format, args...)) }
func (r *Result) addWarning(format string, args ...interface{}) { r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...)) }

// OK reports whether validation produced no errors (warnings do not
// affect this).
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Report formats errors and warnings the way the original validators do,
// for logs and diagnostics.
func (r *Result) Report() string {
	if len(r.Errors) == 0 && len(r.Warnings) == 0 {
		return "[+] Configuration is valid"
	}
	out := ""
	if len(r.Errors) > 0 {
		out += fmt.Sprintf("[x] %d error(s) found:\n", len(r.Errors))
		for _, e := range r.Errors {
			out += "  - " + e + "\n"
		}
	}
	if len(r.Warnings) > 0 {
		out += fmt.Sprintf("[!] %d warning(s):\n", len(r.Warnings))
		for _, w := range r.Warnings {
			out += "  - " + w + "\n"
		}
	}
	return out
}

// Layers is the set of checks a platform-specific validator supplies.
// Validate runs them in order, short-circuiting after Schema and after
// Format/Business if either layer produced errors.
type Layers struct {
	Schema   func(r *Result)
	Format   func(r *Result)
	Business func(r *Result)
	LiveAPI  func(ctx context.Context, r *Result)
}

// Validate runs l against a fresh Result. skipLive skips the live-API
// layer even if the prior layers produced no errors; allowErrors makes
// the returned bool true even when errors exist, for test harnesses.
func Validate(ctx context.Context, l Layers, allowErrors, skipLive bool) (bool, *Result) {
	r := &Result{}

	if l.Schema != nil {
		l.Schema(r)
	}
	if r.OK() && l.Format != nil {
		l.Format(r)
	}
	if r.OK() && l.Business != nil {
		l.Business(r)
	}
	if r.OK() && !skipLive && l.LiveAPI != nil {
		l.LiveAPI(ctx, r)
	}

	if allowErrors {
		return true, r
	}
	return r.OK(), r
}

// AddError and AddWarning let platform validators outside this package
// append findings without reaching into Result's unexported behavior.
func (r *Result) AddError(format string, args ...interface{})   { r.addError(format, args...) }
func (r *Result) AddWarning(format string, args ...interface{}) { r.addWarning(format, args...) }
