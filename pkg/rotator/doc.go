// Package rotator implements the antenna rotator hardware module (spec
// 4.I): position clamping against a horizon map and sun-avoidance keepout,
// duty-cycle limiting, and a small state machine reacting to the tracker's
// "target.position" broadcasts and event lifecycle, grounded on
// _examples/original_source/gs/hardware/{rotator.py,base.py}. The concrete
// serial/network link to a physical rotator is abstracted behind the
// Driver interface; no hardware driver ships in this package.
package rotator
