// Package launcher implements spec 4.E: parsing and validating a YAML
// launch spec, resolving GLOBAL: parameter references and prefix stacking,
// and supervising one OS process per module.
//
// The original dynamically imports a Python class named in YAML; spec §9's
// "Dynamic class loading by string" note replaces that with a registry
// populated at program start (Register("porthouse.X.Y", factory)). Process
// isolation (spec 4.E "Isolation: each worker is a separate OS process") is
// kept faithfully: the launcher re-executes its own binary once per
// surviving module descriptor with `--only <name>`, rather than spawning
// goroutines that would share a process and violate "no shared memory
// other than the broker".
package launcher
