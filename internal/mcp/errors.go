// Package mcp implements the Model Context Protocol server that bridges AI
// clients (Claude Code, Cursor, and similar tool-calling assistants) to the
// chain search engine (C9), so those clients can query an indexed codebase
// the same way codexlens' own CLI does.
package mcp

import (
	"errors"
	"fmt"

	"github.com/codexlens/codexlens/internal/cerrors"
)

// JSON-RPC error codes mirrored from the MCP spec, plus a small set of
// domain-specific codes in the -32000 "server error" reserved range.
const (
	ErrCodeIndexNotFound  = -32001
	ErrCodeSearchFailed   = -32002
	ErrCodeModelLock      = -32003
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ToolError is an MCP protocol error with a JSON-RPC-style code.
type ToolError struct {
	Code    int
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an invalid-params tool error.
func NewInvalidParamsError(message string) *ToolError {
	return &ToolError{Code: ErrCodeInvalidParams, Message: message}
}

// NewMethodNotFoundError builds a method-not-found tool error.
func NewMethodNotFoundError(name string) *ToolError {
	return &ToolError{Code: ErrCodeMethodNotFound, Message: "unknown tool: " + name}
}

// MapError converts a chainsearch/vectorstore error into an MCP ToolError,
// mapping the CodexError category to the closest domain-specific code.
func MapError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var codexErr *cerrors.CodexError
	if errors.As(err, &codexErr) {
		switch codexErr.Category {
		case cerrors.CategorySearch:
			return &ToolError{Code: ErrCodeSearchFailed, Message: codexErr.Error()}
		case cerrors.CategoryModelLock:
			return &ToolError{Code: ErrCodeModelLock, Message: codexErr.Error()}
		default:
			return &ToolError{Code: ErrCodeInternalError, Message: codexErr.Error()}
		}
	}
	return &ToolError{Code: ErrCodeInternalError, Message: err.Error()}
}
