package main

import "github.com/audiolibrelab/coffeehunt/cmd"

func main() {
	cmd.Execute()
}
