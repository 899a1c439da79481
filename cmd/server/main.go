package main

import (
	"os"

	"lectern/backend/internal/app"
)

func main() {
	os.Exit(app.Run())
}
