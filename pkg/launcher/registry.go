package launcher

import (
	"context"
	"fmt"
	"sync"
)

// Runner is what a registered module factory returns: something the
// launcher's worker process can run to completion or cancellation.
type Runner interface {
	Run(ctx context.Context) error
}

// Factory builds a Runner from its resolved parameter map, routing prefix,
// and debug flag. RequiredParams lets the registry reproduce the
// original's constructor-introspection error ("Module %s missing argument
// %r") without reflection over a dynamically loaded class.
type Factory struct {
	RequiredParams []string
	New            func(params map[string]any, prefix string, debug bool) (Runner, error)
}

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register installs a module factory under its fully-qualified class name,
// replacing the original's dynamic `import_module`/`getattr` lookup (spec
// §9 "Dynamic class loading by string"). Concrete modules call this from
// an init() in their own package.
func Register(class string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[class] = f
}

// Build looks up class and instantiates it, checking required parameters
// up front the way the original's argspec introspection does.
func Build(class string, params map[string]any, prefix string, debug bool) (Runner, error) {
	registryMu.Lock()
	f, ok := registry[class]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("launcher: unknown module class %q", class)
	}

	for _, req := range f.RequiredParams {
		if _, ok := params[req]; !ok {
			return nil, fmt.Errorf("launcher: module (class %s) missing argument %q", class, req)
		}
	}

	return f.New(params, prefix, debug)
}
