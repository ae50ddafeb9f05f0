// Package logx configures tgproxy's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File and JSON output structured
//   - Level and sinks swappable at runtime (config hot reload)
package logx
