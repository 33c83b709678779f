package main

import "github.com/lensworks/etlpipe/cmd"

func main() {
	cmd.Execute()
}
