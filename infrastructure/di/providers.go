package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/application/services"
	domaincfg "codetrail/domain/config"
	"codetrail/infrastructure/config"
	dynamostore "codetrail/infrastructure/persistence/dynamodb"
	"codetrail/infrastructure/persistence/jsonfile"
	"codetrail/infrastructure/persistence/memory"
	"codetrail/infrastructure/relocation"
	"codetrail/interfaces/http/rest"
	"codetrail/pkg/observability"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideDomainConfig selects business limits for the environment
func ProvideDomainConfig(cfg *config.Config) *domaincfg.DomainConfig {
	return domaincfg.LoadDomainConfig(cfg.Environment)
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideGraphProvider selects the storage driver from configuration.
// The returned cleanup stops any background resources the driver holds.
func ProvideGraphProvider(
	ctx context.Context,
	cfg *config.Config,
	client *awsdynamodb.Client,
	metrics *observability.Collector,
	logger *zap.Logger,
) (ports.GraphProvider, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return memory.NewStore(logger), func() {}, nil
	case config.DriverFile:
		store, err := jsonfile.NewStore(cfg.DataDir, metrics, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case config.DriverDynamoDB:
		return dynamostore.NewStore(client, cfg.DynamoDBTable, metrics, logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// ProvideRelocator wires the default no-op relocation engine
func ProvideRelocator() ports.LocationRelocator {
	return relocation.NewNoopRelocator()
}

// clipboardSignalLogger logs presence changes; UI processes subscribe
// out of band.
type clipboardSignalLogger struct {
	logger *zap.Logger
}

func (s clipboardSignalLogger) ClipboardChanged(hasData bool) {
	s.logger.Debug("Clipboard presence changed", zap.Bool("hasData", hasData))
}

// ProvideClipboardSignal creates the clipboard presence sink
func ProvideClipboardSignal(logger *zap.Logger) ports.ClipboardSignal {
	return clipboardSignalLogger{logger: logger}
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("codetrail")
}

// ProvideNodeManager creates the node manager
func ProvideNodeManager(
	graphs ports.GraphProvider,
	relocator ports.LocationRelocator,
	limits *domaincfg.DomainConfig,
	logger *zap.Logger,
) *services.NodeManager {
	return services.NewNodeManager(graphs, relocator, limits, logger)
}

// ProvideClipboardManager creates the clipboard manager
func ProvideClipboardManager(
	nodes *services.NodeManager,
	graphs ports.GraphProvider,
	signal ports.ClipboardSignal,
	logger *zap.Logger,
) *services.ClipboardManager {
	return services.NewClipboardManager(nodes, graphs, signal, logger)
}

// ProvideNodeOrderManager creates the node order manager
func ProvideNodeOrderManager(
	nodes *services.NodeManager,
	graphs ports.GraphProvider,
	logger *zap.Logger,
) *services.NodeOrderManager {
	return services.NewNodeOrderManager(nodes, graphs, logger)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	nodes *services.NodeManager,
	clipboard *services.ClipboardManager,
	order *services.NodeOrderManager,
	graphs ports.GraphProvider,
	metrics *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(nodes, clipboard, order, graphs, metrics, cfg, logger)
}
