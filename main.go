// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/kohyalaunch/kohyalaunch/cmd/kohyalaunch"

func main() {
	cmd.Execute()
}
