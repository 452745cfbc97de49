package main

import "github.com/ddvo/chorelist/internal/cli"

func main() {
	cli.Execute()
}
