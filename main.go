// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/wardd-org/wardd/cmd"

func main() {
	cmd.Execute()
}
