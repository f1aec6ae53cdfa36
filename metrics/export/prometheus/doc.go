// Package prometheus exposes gateway counters and the authenticate latency
// histogram in Prometheus text exposition format, without pulling in a
// client library. Mount Handler on a scrape endpoint or call Render
// directly.
package prometheus
