package main

import (
	"go.uber.org/fx"

	"github.com/Kwazak/umnfestival2026-sub004/internal/app"
)

func main() {
	fx.New(app.HTTP).Run()
}
