package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"
)

// GenerateRunID derives the identifier of a pipeline run's private directory from the
// process, the start time and the selected platforms.
func GenerateRunID(pid int, started time.Time, platforms []string) string {
	sorted := slices.Clone(platforms)
	slices.Sort(sorted)

	var builder strings.Builder
	builder.WriteString(strconv.Itoa(pid))
	builder.WriteString(";")
	builder.WriteString(strconv.FormatInt(started.UnixNano(), 10))
	builder.WriteString(";")
	for _, p := range sorted {
		builder.WriteString(p)
		builder.WriteString(";")
	}

	hash := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(hash[:8])
}
