package main

import "github.com/JakeFAU/hostcrawl/cmd"

func main() {
	cmd.Main()
}
