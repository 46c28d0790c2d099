package sync

import "strings"

// Normalize returns the folder-qualified name an item is known by in the
// destination album and in the staging directory. Items directly under the
// root folder keep their own name.
func Normalize(name, folder string) string {
	if strings.TrimSpace(folder) == "" {
		return name
	}
	return folder + "-" + name
}

var stagedNameEscaper = strings.NewReplacer("%", "%25", "/", "%2F", `\`, "%5C")

// StagedFileName maps a normalized key to a single file name inside the
// staging directory. Separators are escaped and the mapping is reversible,
// so a key can neither leave the directory nor collide with another key.
func StagedFileName(key string) string {
	switch key {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return stagedNameEscaper.Replace(key)
}
