package main

import (
	"github.com/gofiber/fiber/v2/log"

	"github.com/scriptgrade/scriptgrade/app"
)

func main() {
	err := app.SetupAndRunServer()
	if err != nil {
		log.Error(err)
		panic(err)
	}
}
