package main

import "github.com/brensch/mrtstat/cmd"

func main() {
	cmd.Execute()
}
