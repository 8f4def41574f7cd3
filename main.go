package main

import "github.com/caskdb/cask/cmd"

func main() {
	cmd.Execute()
}
