package runtime

// ChainDefinition is the declarative form of a Chain, as read by loaders.
type ChainDefinition struct {
	ID          string           `yaml:"id" validate:"required"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Engine      string           `yaml:"engine" default:"expr" validate:"evaluator"`
	Config      map[string]any   `yaml:"config"`
	Properties  map[string]any   `yaml:"properties"`
	Nodes       []NodeDefinition `yaml:"nodes" validate:"required,min=1,dive"`
	Edges       []EdgeDefinition `yaml:"edges" validate:"dive"`
	Output      []string         `yaml:"output"`
}

// NodeDefinition describes one node. Type selects a factory registered on
// the Container; Args carries type-specific settings.
type NodeDefinition struct {
	ID        string         `yaml:"id" validate:"required"`
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type" validate:"required"`
	Engine    string         `yaml:"engine" validate:"evaluator"`
	Code      string         `yaml:"code"`
	Condition string         `yaml:"condition"`
	Async     bool           `yaml:"async"`
	Args      map[string]any `yaml:"args"`
	Metadata  NodeMetadata   `yaml:"metadata"`
}

// EdgeDefinition connects two nodes. Connector is AND or OR; Condition is
// optional and evaluated with Engine (or the chain engine).
type EdgeDefinition struct {
	ID        string `yaml:"id"`
	From      string `yaml:"from" validate:"required"`
	To        string `yaml:"to" validate:"required"`
	Connector string `yaml:"connector" validate:"omitempty,oneof=AND OR and or"`
	Condition string `yaml:"condition"`
	Engine    string `yaml:"engine" validate:"evaluator"`
}
