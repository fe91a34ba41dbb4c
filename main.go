package main

import "github.com/kingotools/capture/cmd"

func main() {
	cmd.Execute()
}
