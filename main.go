package main

import (
	cmd "github.com/reeflabs/reef/cmd/reef"
)

func main() {
	cmd.Execute()
}
