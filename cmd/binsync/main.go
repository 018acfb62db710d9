package main

import "github.com/florinutz/binsync/cmd"

func main() {
	cmd.Execute()
}
