/*
Package log wraps zerolog into the structured-logging fan-out every
porthouse module needs: a process-wide Logger configured once via Init,
child loggers tagged by module/prefix/task, and a BrokerSink that turns
each event into the JSON record spec 4.B requires on exchange "log"
(routing key = lowercase level name).

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	l := log.WithPrefix(log.WithModule("tracker"), "uhf")
	l.Info().Str("target", "ISS").Msg("tracking: state transition")

Once a module's broker channel is up it installs the bridge sink:

	sink := log.NewBrokerSink("tracker", br)
	l = l.Output(zerolog.MultiLevelWriter(l, sink))

BrokerSink never raises into the logging pipeline: a publish failure
(for instance, a channel closed mid-reconnect) is swallowed and the
record is dropped rather than propagated as a logging error.
*/
package log
