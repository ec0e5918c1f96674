// Command openact is the OpenAct CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/aionixone/openact-sub001/cmd/openact/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "there was an error: %v\n", err)
		os.Exit(1)
	}
}
