package main

import (
	"os"

	"bottlo.nz/pricefeed/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
