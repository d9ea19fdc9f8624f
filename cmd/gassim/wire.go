//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/cory-johannsen/gas/internal/app"
)

func initializeApp(path app.ConfigPath) (*app.App, func(), error) {
	wire.Build(app.ProviderSet)
	return nil, nil, nil
}
