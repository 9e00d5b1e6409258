/*
Package metrics exposes deployment counters for Prometheus scraping.

A deployment is a short-lived process, not a server, so there is no
/metrics endpoint to scrape. Instead each run writes its final metric
state to a textfile in the data directory for node-exporter's textfile
collector to pick up. Hosts already scraped by node-exporter get
deployment outcomes, durations, poll attempt counts, and backup sizes
with no extra listener.
*/
package metrics
