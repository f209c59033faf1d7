package main

import (
	"log"

	corecmd "github.com/evelynmon/wabot/core/cmd"
)

func main() {
	if err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
	}); err != nil {
		log.Fatal(err)
	}
}
