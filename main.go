package main

import "inkink/cmd"

func main() {
	cmd.Execute()
}
