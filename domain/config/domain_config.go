package config

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Graph constraints
	MaxNodesPerGraph int
	DefaultGraphName string

	// Node constraints
	MaxNameLength      int
	MaxSnippetLength   int
	MaxChildrenPerNode int

	// Search limits
	MaxSearchResults int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxNodesPerGraph: 10000,
		DefaultGraphName: "Code Trail",

		MaxNameLength:      500,
		MaxSnippetLength:   5000,
		MaxChildrenPerNode: 1000,

		MaxSearchResults: 100,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More restrictive limits for production
	config.MaxNodesPerGraph = 5000
	config.MaxChildrenPerNode = 500

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More permissive for development
	config.MaxNodesPerGraph = 100000

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}
