package main

import (
	cmd "github.com/kerbaras/mdbulk/cmd/mdbulk"
)

func main() {
	cmd.Execute()
}
