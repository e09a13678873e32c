// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the kohyalaunch command line.
package cmd
