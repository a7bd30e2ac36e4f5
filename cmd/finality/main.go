package main

import "github.com/vietddude/finality/internal/cli"

func main() {
	cli.Execute()
}
