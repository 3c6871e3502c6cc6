package main

import "github.com/villagevault/villagevault/cmd"

func main() {
	cmd.Execute()
}
