package simtransport

import "strings"

var cannedResponses = map[string]string{
	"pwd":            "/data/data/com.termux/files/home",
	"ls":             "Documents\nDownloads\nstorage",
	"echo $PATH":     "/data/data/com.termux/files/usr/bin",
	"node --version": "v18.19.0",
	"claude-code":    "Claude Code v1.0.0 (Mock Mode)",
}

// Response returns the deterministic output the simulated backend produces
// for input. Output always ends with a newline.
func Response(input string) string {
	if canned, ok := cannedResponses[strings.TrimSpace(input)]; ok {
		return canned + "\n"
	}
	return "Mock response for: " + input + "\n"
}
