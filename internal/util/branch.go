package util

import (
	"fmt"
	"strings"
)

// Branch paths contain slashes, which cannot travel in a single URL path
// segment. Routes carry them with '|' instead.

// DecodeBranch turns a route segment such as "MAIN|SNOMEDCT-AU|AUAMT" into
// the repository branch path "MAIN/SNOMEDCT-AU/AUAMT".
func DecodeBranch(segment string) (string, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "", fmt.Errorf("branch is empty")
	}
	branch := strings.ReplaceAll(segment, "|", "/")
	if !strings.HasPrefix(branch, "MAIN") {
		return "", fmt.Errorf("branch %q must start at MAIN", branch)
	}
	for _, part := range strings.Split(branch, "/") {
		if part == "" {
			return "", fmt.Errorf("branch %q has an empty path element", branch)
		}
	}
	return branch, nil
}

// EncodeBranch is the inverse of DecodeBranch.
func EncodeBranch(branch string) string {
	return strings.ReplaceAll(branch, "/", "|")
}
