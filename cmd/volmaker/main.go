package main

import "poly-volmaker/internal/volbot"

func main() {
	volbot.Run()
}
