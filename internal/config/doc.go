// SPDX-License-Identifier: MPL-2.0

// Package config resolves the launcher's options using Viper.
//
// Values are layered in increasing priority: built-in defaults, the install
// configuration documents discovered at fixed search paths (later paths win),
// an explicit --file document, and finally command-line flags that were set.
// Path options are expanded and made absolute after the merge.
package config
