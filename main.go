package main

import "pairspace-backend/cmd"

func main() {
	cmd.Run()
}
