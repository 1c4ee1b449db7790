package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Provision(). Modules listed with an
// empty body receive an empty mapping node so defaults still apply.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after instantiation:
// opening files or databases, registering services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their configuration
// is complete and correct. Called after Provision(). Must be read-only.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work
// (listeners, schedulers). Called after every module is provisioned.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that need to release resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}
