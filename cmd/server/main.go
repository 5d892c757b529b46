package main

import "github.com/clubsite/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
