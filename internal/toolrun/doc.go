// Package toolrun executes external tools with a per-call deadline and the
// retry policy shared by every analysis stage.
//
// Calls that exceed the deadline are retried with exponential backoff up to
// tools.timeout_retries attempts and then surface services.ErrStageTimeout.
// Calls that exit non-zero or print malformed output are retried once and then
// surface services.ErrExternalTool. The analysis helper speaks JSON on stdout:
// `<helper> <operation> <args...>`.
package toolrun
