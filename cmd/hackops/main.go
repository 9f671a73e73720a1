package main

import "hackops/internal/cmd"

func main() {
	cmd.Execute()
}
