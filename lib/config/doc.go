// cmd/effect-run is this package's only consumer: at startup it calls
// [LoadFile] when --config or $EFFECT_CORE_CONFIG names a file (and
// uses [Default] otherwise), validates the result, hands the runtime
// and worker settings to lib/runtimebin, and passes the API base URL
// into the effect run. The log-pipeline settings are validated but not
// read by lib/logpipeline, whose batch size and flush interval are
// fixed in package effect.
package config
