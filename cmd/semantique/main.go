// Command semantique evaluates semantic query recipes against a data cube.
package main

import (
	"os"

	"github.com/lisahligono/semantique/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
