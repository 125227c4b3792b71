package main

import "github.com/i-zrhe2016/amazing-3.1/internal/cli"

func main() {
	cli.Execute()
}
