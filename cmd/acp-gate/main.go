// Command acp-gate runs the consent gateway: the shell-gate HTTP endpoint
// and the HTTP forward proxy that together enforce human consent on an
// autonomous agent's shell and network actions.
package main

import "github.com/Sentinel-Gate/acp-gate/cmd/acp-gate/cmd"

func main() {
	cmd.Execute()
}
