package main

import "github.com/maheshrc27/nextpost/cmd/nextpost/commands"

func main() {
	commands.Execute()
}
