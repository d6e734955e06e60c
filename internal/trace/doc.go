// Package trace classifies diagnostic trace events from the probe stream.
//
// The upstream trace format is free text owned by another system: routing
// decisions surface as log lines inside SSE chunks, not as structured
// fields. Extraction is whitespace-delimited token matching against known
// message shapes; anything unrecognized is logged and dropped. The matching
// rules live behind the Extractor so they can be versioned independently of
// the correlation logic.
package trace
