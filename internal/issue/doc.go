// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. Issue holds Markdown guidance for the well-known failure
// modes of an install run and renders it for the terminal.
package issue
