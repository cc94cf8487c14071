package yaml

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/BDNK1/agentflow/runtime"
	goyaml "gopkg.in/yaml.v3"
)

var _ runtime.ChainLoader = (*ChainLoader)(nil)

// ChainLoader builds chains from YAML definitions using the node types
// registered on a Container.
type ChainLoader struct {
	container *runtime.Container
	l         *slog.Logger
	opts      []runtime.ChainOption
}

func NewChainLoader(container *runtime.Container, l *slog.Logger, opts ...runtime.ChainOption) *ChainLoader {
	if container == nil {
		container = runtime.NewContainer()
	}
	return &ChainLoader{container: container, l: l, opts: opts}
}

func (l *ChainLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml"}
}

func (l *ChainLoader) Load(filePath string) (*runtime.Chain, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", filePath, err)
	}

	return l.container.Build(def, l.l, l.opts...)
}

// Parse decodes a chain definition. Unknown fields are rejected so typos
// in node settings surface at load time.
func Parse(data []byte) (*runtime.ChainDefinition, error) {
	var def runtime.ChainDefinition
	dec := goyaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("error unmarshalling YAML: %w", err)
	}
	return &def, nil
}
