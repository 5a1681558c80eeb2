package main

import "github.com/kiesman99/tilemosaic/cmd"

func main() {
	cmd.Execute()
}
