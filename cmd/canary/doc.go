// Command canary runs the fleet probe engine: it periodically issues
// synthetic streaming requests against registered services, correlates
// the diagnostic trace events they emit, and persists the resulting
// per-sub-request records for fleet health and audit analysis.
package main
