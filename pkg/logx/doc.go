// Package logx configures solocron's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional per-logger rate limiting (Sampled) for lines that repeat
//     every schedule occurrence
package logx
