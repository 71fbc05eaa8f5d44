package main

import (
	"github.com/ekuzmich/collabrun/internal/app"
	"github.com/ekuzmich/collabrun/internal/config"
)

func main() {
	app.GoWorker(config.Load())
}
