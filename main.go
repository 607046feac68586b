// SPDX-License-Identifier: MPL-2.0

// Command ledserver runs the LED strip control server.
package main

import cmd "ledserver/cmd/ledserver"

func main() {
	cmd.Execute()
}
