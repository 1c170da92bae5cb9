// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/tunegrab/tunegrab/cmd/tunegrab"

func main() {
	cmd.Execute()
}
