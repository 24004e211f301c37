package main

import "github.com/nextlevelbuilder/pairlink/cmd"

func main() {
	cmd.Execute()
}
