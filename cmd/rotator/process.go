package main

import (
	"os"
)

// processInfo returns process information for the startup log line
func processInfo() map[string]interface{} {
	return map[string]interface{}{
		"pid":      os.Getpid(),
		"uid":      os.Getuid(),
		"hostname": hostname(),
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
