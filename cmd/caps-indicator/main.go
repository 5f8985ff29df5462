// Command caps-indicator shows an on-screen frame while Caps Lock is on.
package main

import (
	"fmt"
	"os"

	"github.com/Dicklesworthstone/caps-indicator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "caps-indicator: %v\n", err)
		os.Exit(1)
	}
}
