package main

import "github.com/securevote/backend/cmd"

func main() {
	cmd.Execute()
}
