// Package logging provides structured logging for Prometheus scans.
//
// Logs are JSON lines written through log/slog. A scan always logs to a
// rotating file under ~/.prometheus/logs/ when --debug or --log-file is
// set; otherwise only warnings reach stderr. When the interactive display
// owns the terminal, stderr output is disabled so log lines never tear
// the progress view.
package logging
