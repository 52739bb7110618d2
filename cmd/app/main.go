package main

import (
	"github.com/picswap/core/internal/app"
	"github.com/picswap/core/internal/config"
)

func main() {
	app.Go(config.Load())
}
