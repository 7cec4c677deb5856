package main

import "tradedash/cmd"

func main() {
	cmd.Execute()
}
