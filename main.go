package main

import "github.com/metal-toolbox/composer/cmd"

func main() {
	cmd.Execute()
}
