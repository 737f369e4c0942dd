//go:build tools
// +build tools

// Package tools pins development tool dependencies that code generation and
// linting rely on, so `go mod tidy` doesn't drop them as unused.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "go.uber.org/mock/mockgen"
)
