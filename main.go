package main

import "github.com/feedopt/feedopt/cmd"

func main() {
	cmd.Execute()
}
