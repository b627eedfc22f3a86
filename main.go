package main

import "flotilla/cmd"

func main() {
	cmd.Execute()
}
