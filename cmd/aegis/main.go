package main

import "github.com/ppiankov/aegis/internal/cli"

func main() {
	cli.Execute()
}
