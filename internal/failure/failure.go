// Package failure holds the fatal error kinds a build can end with.
package failure

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed .machrc or package.json.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UnresolvedSpecifier means no resolver claimed a dependency.
type UnresolvedSpecifier struct {
	Specifier string
	From      string
}

func (e *UnresolvedSpecifier) Error() string {
	return fmt.Sprintf("cannot resolve %q from %s", e.Specifier, e.From)
}

// ResolverError is a hard error returned by a resolver plugin.
type ResolverError struct {
	Plugin  string
	Message string
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolver %s: %s", e.Plugin, e.Message)
}

// TransformerError is a failure inside a transformer plugin.
type TransformerError struct {
	Plugin  string
	File    string
	Message string
}

func (e *TransformerError) Error() string {
	return fmt.Sprintf("transformer %s on %s: %s", e.Plugin, e.File, e.Message)
}

// TransformerLoop is returned when an asset's kind keeps changing past the
// iteration bound.
type TransformerLoop struct {
	File  string
	Kinds []string
}

func (e *TransformerLoop) Error() string {
	return fmt.Sprintf("transformer loop on %s (kinds %v)", e.File, e.Kinds)
}

// ReadError wraps a source read failure.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// PluginTimeout is returned when an RPC call outlives its deadline.
type PluginTimeout struct {
	Plugin string
	Op     string
}

func (e *PluginTimeout) Error() string {
	return fmt.Sprintf("plugin %s: %s timed out", e.Plugin, e.Op)
}

// PluginError covers transport and protocol failures of a remote engine.
type PluginError struct {
	Plugin string
	Op     string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Op, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// BundlerError reports an impossible partition.
type BundlerError struct {
	Reason string
}

func (e *BundlerError) Error() string {
	return "bundler: " + e.Reason
}

// PackagerError reports a codegen failure for one bundle.
type PackagerError struct {
	Bundle string
	Reason string
}

func (e *PackagerError) Error() string {
	return fmt.Sprintf("packager %s: %s", e.Bundle, e.Reason)
}

// EmitError wraps a failure writing into dist_dir.
type EmitError struct {
	Path string
	Err  error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %s: %v", e.Path, e.Err)
}

func (e *EmitError) Unwrap() error { return e.Err }

// Exit codes of the build command.
const (
	ExitOK     = 0
	ExitUser   = 1
	ExitPlugin = 2
)

// ExitCode classifies err: plugin-side failures map to ExitPlugin, any other
// error to ExitUser.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsPlugin(err) {
		return ExitPlugin
	}
	return ExitUser
}

// IsPlugin reports whether err originates from a plugin.
func IsPlugin(err error) bool {
	var (
		re *ResolverError
		te *TransformerError
		pt *PluginTimeout
		pe *PluginError
	)
	return errors.As(err, &re) || errors.As(err, &te) || errors.As(err, &pt) || errors.As(err, &pe)
}
