// This program performs administrative tasks for the node: deriving the
// deterministic accounts, inspecting a stored chain and talking to a
// running node.
package main

import "github.com/ardanlabs/ethsim/app/tooling/admin/cmd"

func main() {
	cmd.Execute()
}
