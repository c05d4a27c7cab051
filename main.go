package main

import "github.com/tokex-dev/tokex/cmd"

func main() {
	cmd.Execute()
}
