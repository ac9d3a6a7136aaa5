package main

import "github.com/FACorreiaa/cityinfo-api/cmd/cityinfo/commands"

func main() {
	commands.Execute()
}
