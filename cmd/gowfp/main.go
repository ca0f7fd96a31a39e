// Command gowfp installs scoped packet filters into the Windows Filtering
// Platform and removes them on exit.
package main

import "github.com/bolasblack/gowfp/internal/cli"

func main() {
	cli.Execute()
}
