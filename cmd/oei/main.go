package main

import "github.com/OpenTraceLab/OpenTraceOEI/cmd/oei/cmd"

func main() {
	cmd.Execute()
}
