package main

import (
	"os"
	"time"

	"github.com/Mmx233/QCalc/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	// Logs go to stderr, stdout carries the session lines and report
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	})
}

func main() {
	cmd.Execute()
}
