package main

import (
	"github.com/trendora/order-svc/internal/app"
	"github.com/trendora/order-svc/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
