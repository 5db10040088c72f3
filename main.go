package main

import "github.com/nextlevelbuilder/tgmon/cmd"

func main() {
	cmd.Execute()
}
