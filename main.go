package main

import "github.com/gpaciente/psync/cmd"

func main() {
	cmd.Execute()
}
