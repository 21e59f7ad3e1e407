package net

import (
	"context"
	"log/slog"
	"net/http"
)

// PrintHTTPResponse logs the response status line and headers at debug level.
func PrintHTTPResponse(resp *http.Response) {
	if resp == nil || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	slog.Debug("http response",
		"status", resp.Status,
		"content_type", resp.Header.Get("Content-Type"),
		"content_length", resp.ContentLength,
		"request_id", resp.Header.Get("X-Request-ID"))
}
