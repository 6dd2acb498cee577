package platform

import (
	"os"
	"strings"
)

var osReleasePath = "/etc/os-release"

// readDistroIDs returns the lower-cased ID and ID_LIKE entries of os-release.
func readDistroIDs() []string {
	data, err := os.ReadFile(osReleasePath)
	if err != nil {
		return nil
	}
	return parseDistroIDs(string(data))
}

func parseDistroIDs(s string) []string {
	var ids []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || (k != "ID" && k != "ID_LIKE") {
			continue
		}
		v = strings.Trim(v, `"'`)
		ids = append(ids, strings.Fields(strings.ToLower(v))...)
	}
	return ids
}
