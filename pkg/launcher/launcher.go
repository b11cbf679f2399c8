package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/config"
	"github.com/aaltosatellite/porthouse/pkg/log"
)

// Launcher parses a launch spec, declares exchanges, and supervises one
// child process per surviving module descriptor (spec 4.E).
type Launcher struct {
	spec    *LaunchSpec
	cfgFile string
	globals map[string]any
	br      *broker.Client
	log     zerolog.Logger
}

// New parses cfgFile and connects to the broker named by globals.yaml's
// amqp_url.
func New(cfgFile string) (*Launcher, error) {
	spec, err := ParseFile(cfgFile)
	if err != nil {
		return nil, err
	}

	globals, err := config.LoadGlobals()
	if err != nil {
		return nil, fmt.Errorf("launcher: loading globals: %w", err)
	}

	br := broker.New(globals.AMQPURL)
	if err := br.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("launcher: connecting to broker: %w", err)
	}

	return &Launcher{
		spec:    spec,
		cfgFile: cfgFile,
		globals: map[string]any{"amqp_url": globals.AMQPURL, "db_url": globals.DBURL, "log_path": globals.LogPath},
		br:      br,
		log:     log.WithComponent("launcher"),
	}, nil
}

// DeclareExchanges implements `--declare_exchanges`: delete and redeclare
// each exchange durable, auto_delete=false, then return (spec 4.E step 3).
func (l *Launcher) DeclareExchanges() error {
	l.log.Info().Msg("declaring exchanges")
	for _, e := range l.spec.Exchanges {
		l.log.Debug().Str("exchange", e.Name).Str("kind", string(e.Kind)).Msg("declaring")
		if err := l.br.DeclareExchange(e, true); err != nil {
			return fmt.Errorf("launcher: declaring exchange %q: %w", e.Name, err)
		}
	}
	return nil
}

// RunSupervised filters modules by include/exclude, forks one child worker
// process per survivor, and waits until any one of them dies — at which
// point it tears down the rest and returns an error (spec 4.E steps 4-6).
func (l *Launcher) RunSupervised(ctx context.Context, includes, excludes []string, debug bool) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("launcher: resolving own executable: %w", err)
	}

	var children []launchChild
	exited := make(chan string, len(l.spec.Modules))

	for _, m := range l.spec.Modules {
		name := m.Name
		if name == "" {
			name = m.Module
		}
		if !IncludeExclude(name, includes, excludes) {
			continue
		}

		args := []string{"launch", "--cfg", l.cfgFile, "--only", name}
		if debug || m.Debug {
			args = append(args, "-d")
		}
		cmd := exec.Command(self, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		l.log.Info().Str("module", name).Str("class", m.Module).Msg("starting module")
		if err := cmd.Start(); err != nil {
			l.terminateAll(children)
			return fmt.Errorf("launcher: starting module %q: %w", name, err)
		}
		children = append(children, launchChild{name: name, cmd: cmd})
	}

	if len(children) == 0 {
		return fmt.Errorf("launcher: no modules survived include/exclude filtering")
	}

	var wg sync.WaitGroup
	for _, c := range children {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.cmd.Wait()
			exited <- c.name
		}()
	}

	select {
	case name := <-exited:
		l.log.Error().Str("module", name).Msg("module exited, tearing down the rest")
	case <-ctx.Done():
		l.log.Info().Msg("interrupted, tearing down all modules")
	}

	l.terminateAll(children)
	wg.Wait()
	l.log.Warn().Msg("core shutdown")
	return fmt.Errorf("launcher: supervised run ended")
}

// launchChild pairs a module's logical name with its supervised OS process.
type launchChild struct {
	name string
	cmd  *exec.Cmd
}

func (l *Launcher) terminateAll(children []launchChild) {
	for _, c := range children {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
	}
}

// RunOnly resolves the one module descriptor named name, builds it through
// the registry, and runs it to completion. This is what a child process
// invoked with `--only <name>` executes.
func (l *Launcher) RunOnly(ctx context.Context, name string, debugOverride bool) error {
	for _, m := range l.spec.Modules {
		candidate := m.Name
		if candidate == "" {
			candidate = m.Module
		}
		if candidate != name {
			continue
		}

		params, err := ResolveParams(l.globals, m)
		if err != nil {
			return err
		}
		if debugOverride {
			params["debug"] = true
		}

		prefix := StackPrefix(l.spec.Prefix, m.Prefix)
		runner, err := Build(m.Module, params, prefix, debugOverride || m.Debug)
		if err != nil {
			return fmt.Errorf("launcher: module %q: %w", name, err)
		}

		l.log.Info().Str("module", name).Msg("module starting")
		err = runner.Run(ctx)
		l.log.Info().Str("module", name).Err(err).Msg("module exited")
		return err
	}
	return fmt.Errorf("launcher: no module named %q in %s", name, l.cfgFile)
}

// pollInterval matches the original's 0.5s liveness poll; kept only for
// documentation since RunSupervised uses cmd.Wait() instead of polling.
const pollInterval = 500 * time.Millisecond
