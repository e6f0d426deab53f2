package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"multimodal/pkg/domain"
)

// PathsHash вычисляет детерминированный хеш набора путей.
// Порядок путей не влияет на результат.
func PathsHash(origin, destination string, paths []domain.PathSummary) string {
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		modes := make([]string, len(p.ModeSequence))
		for i, m := range p.ModeSequence {
			modes[i] = string(m)
		}
		lines = append(lines, fmt.Sprintf("%s|%s|%.6f|%.6f|%.6f",
			strings.Join(p.LocationSequence, ">"),
			strings.Join(modes, ","),
			p.TotalCost, p.TotalTime, p.TotalEnvironment,
		))
	}
	sort.Strings(lines)

	var b strings.Builder
	fmt.Fprintf(&b, "o:%s;d:%s;", origin, destination)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte(';')
	}

	return ShortHash([]byte(b.String()))
}

// BuildAdviceKey строит ключ кэша для ответа советника
func BuildAdviceKey(provider, pathsHash string) string {
	return fmt.Sprintf("%s:%s", provider, pathsHash)
}

// QuickHash полный sha256 в hex
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash короткий хеш (32 символа)
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}
