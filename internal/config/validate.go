package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/confidant/internal/core"
)

// singletonNamespaces must each have exactly one configured module.
var singletonNamespaces = []string{"history", "provider"}

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present and
// registered, requires exactly one history and one provider module,
// and range-checks the session settings. All problems are joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	ids := Resolve(cfg)
	for _, id := range ids {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	for _, ns := range singletonNamespaces {
		switch matched := core.InNamespace(ids, ns); len(matched) {
		case 1:
		case 0:
			errs = append(errs, fmt.Errorf("config: exactly one %s.* module is required, none configured", ns))
		default:
			errs = append(errs, fmt.Errorf("config: exactly one %s.* module is required, got %s", ns, strings.Join(matched, ", ")))
		}
	}

	errs = append(errs, validateSession(cfg.Session)...)

	return errors.Join(errs...)
}

func validateSession(s SessionConfig) []error {
	var errs []error
	if s.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("config: session.history_window must not be negative, got %d", s.HistoryWindow))
	}
	if s.MaxPriorTurns < 0 {
		errs = append(errs, fmt.Errorf("config: session.max_prior_turns must not be negative, got %d", s.MaxPriorTurns))
	}
	return errs
}
