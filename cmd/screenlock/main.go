// Command screenlock prints every lock and unlock of the current session and can
// forward them to websocket clients.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
