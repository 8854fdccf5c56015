// Command mcpcore runs the Model Context Protocol core server.
package main

import "github.com/mcpcore/mcpcore/internal/cmd"

func main() {
	cmd.Execute()
}
