// Package errors provides the classified error type used across teadocs.
//
// Every error that crosses a component boundary carries a category
// (content, compile, asset, io, config, ...), a severity and a context map
// holding at least the source path. The CLI adapter maps categories to exit
// codes and the HTTP adapter to JSON responses.
//
// Example usage:
//
//	err := errors.ContentError(rel, "unterminated front-matter block").
//		WithCause(cause).
//		Build()
package errors
