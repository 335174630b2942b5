// Command threadcmd runs the thread command rule engine.
//
// @title       thread-commands API
// @version     1.0
// @description Admin and ingest API of the thread command rule engine.
// @BasePath    /api/v1
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/thread-commands/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("threadcmd failed")
		os.Exit(1)
	}
}
