package main

import (
	"github.com/AzielCF/az-hub/cmd"
)

func main() {
	cmd.Execute()
}
