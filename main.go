package main

import "github.com/stevemurr/simple-record-server/cli"

func main() {
	cli.Execute()
}
