package main

import "github.com/CosmoTheDev/repowatch/cmd"

func main() {
	cmd.Execute()
}
