package main

import "github.com/lepinkainen/libsearch/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
