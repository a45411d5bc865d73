package main

import (
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/toolshelf/pkg/gateway"
)

func main() {
	gw, err := gateway.NewGateway()
	if err != nil {
		log.Fatal().Err(err).Msg("error creating gateway service")
	}

	if err := gw.Start(); err != nil {
		log.Fatal().Err(err).Msg("gateway failed")
	}
	log.Info().Msg("Gateway stopped")
}
