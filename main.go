package main

import "github.com/kozaktomas/face-align/cmd"

func main() {
	cmd.Execute()
}
