// Package internal holds identifier generation shared by the root package
// and its subpackages. Nothing here is part of the public API.
package internal
