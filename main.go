package main

import "github.com/tanq16/mirrorget/cmd"

func main() {
	cmd.Execute()
}
