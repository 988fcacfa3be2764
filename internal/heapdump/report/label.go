package report

import (
	"fmt"

	"github.com/heapdom/retain/internal/heapdump/graph"
	"github.com/heapdom/retain/internal/heapdump/record"
)

const valueTruncateLen = 20

// NodeLabel returns a human-readable label for a graph node, e.g.
// "Thread[0x7f83df87dc40]", "Hash[0x...][size=5]", "String[0x...][abc...]".
// Resolved class names take priority over the raw type tag.
func NodeLabel(g *graph.Graph) func(int32) string {
	return func(idx int32) string {
		n := g.Node(idx)
		base := string(n.Type)
		if n.ClassName != "" {
			base = n.ClassName
		}
		label := fmt.Sprintf("%s[0x%x]", base, n.Address)

		switch {
		case n.Type == record.TypeString && n.Value != "":
			label += fmt.Sprintf("[%s]", truncate(n.Value, valueTruncateLen))
		case n.HasLength:
			label += fmt.Sprintf("[length=%d]", n.Length)
		case n.HasSize:
			label += fmt.Sprintf("[size=%d]", n.Size)
		}
		return label
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// formatBytes renders a byte count as a human-readable size string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
