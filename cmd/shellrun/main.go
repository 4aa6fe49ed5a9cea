package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ecairns22/shellrun/cmd/shellrun/commands"
)

func main() {
	err := commands.Root().Execute()
	if err == nil {
		return
	}
	var exitErr *commands.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
