package main

import (
	"github.com/parley-labs/parley/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
