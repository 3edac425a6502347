package cli

import (
	"go.uber.org/zap"

	"codeops/internal/config"
	"codeops/internal/facade"
	"codeops/internal/service"
	"codeops/internal/ui"
	"codeops/internal/util"
)

// AppContainer is the central dependency injection container for the application
type AppContainer struct {
	Config   *config.Config
	Logger   *zap.Logger
	Terminal *ui.Terminal
	Manager  *service.Manager
	Store    *service.FileStore
	Facade   *facade.Facade
}

// NewApp wires up all services and dependencies based on the provided config
func NewApp(cfg *config.Config) (*AppContainer, error) {
	logger := util.NewLogger(cfg)
	terminal := ui.NewTerminal()

	manager, err := service.NewManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &AppContainer{
		Config:   cfg,
		Logger:   logger,
		Terminal: terminal,
		Manager:  manager,
		Store:    service.NewStore(cfg, logger),
		Facade:   facade.New(manager, logger),
	}, nil
}

// Close stops any running server and flushes log buffers.
func (a *AppContainer) Close() {
	if a.Manager != nil {
		_ = a.Manager.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
