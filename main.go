package main

import "github.com/nextlevelbuilder/ensemble/cmd"

func main() {
	cmd.Execute()
}
