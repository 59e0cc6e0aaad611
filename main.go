package main

import "github.com/gregLibert/vsmartcard/cmd"

func main() {
	cmd.Execute()
}
