// SPDX-License-Identifier: MPL-2.0

// Command lhapdf-management installs, updates and inspects LHAPDF PDF sets.
package main

import cmd "gitlab.com/hepcedar/lhapdf-management/cmd/lhapdf-management"

func main() {
	cmd.Execute()
}
