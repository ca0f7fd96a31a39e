// Command genschema writes the JSON schema of .gowfp.toml to a file, or to
// stdout when no path is given.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bolasblack/gowfp/internal/config"
)

func main() {
	data, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		if err := os.WriteFile(os.Args[1], data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(string(data))
	}
}
