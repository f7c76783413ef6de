// Package internaldefs holds the metric name, help, and bucket definitions
// shared by the exporter packages.
//
// Both exporters must emit identical names and bucket boundaries, so the
// definitions live here rather than in either exporter.
package internaldefs
