package main

import "github.com/Kayo-b/voto-db/cmd"

func main() {
	cmd.Execute()
}
