package main

import (
	"os"

	"github.com/mikaelmello/rawping/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
