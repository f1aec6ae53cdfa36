// Package internaldefs holds the shared metric name and bucket tables used
// by the exporters.
package internaldefs
