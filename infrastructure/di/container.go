package di

import (
	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/application/services"
	"codetrail/infrastructure/config"
	"codetrail/interfaces/http/rest"
	"codetrail/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Graphs    ports.GraphProvider
	Nodes     *services.NodeManager
	Clipboard *services.ClipboardManager
	Order     *services.NodeOrderManager
	Metrics   *observability.Collector
	Router    *rest.Router
}
