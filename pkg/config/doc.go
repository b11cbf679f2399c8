// Package config loads porthouse's process-wide configuration directory
// (spec 4.D): globals.yaml, groundstation.yaml, and tle.yaml, rooted at
// $PORTHOUSE_CFG or ~/.porthouse. Globals are cached on first load; every
// later caller observes the same *Globals instance, matching the original's
// module-global cache.
package config
