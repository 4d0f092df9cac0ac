package main

import (
	"os"

	"github.com/tanpawarit/Chative-Support-Router/cmd"
	_ "github.com/tanpawarit/Chative-Support-Router/pkg/logger/autoload"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
