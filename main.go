package main

import "photo-trade-backend/cmd"

func main() {
	cmd.Execute()
}
