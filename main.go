package main

import "github.com/waymirror/waymirror/cmd"

func main() {
	cmd.Execute()
}
