package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

func FormatJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func FormatHostsTable(data map[string]interface{}) error {
	hosts, ok := data["hosts"].([]interface{})
	if !ok {
		return fmt.Errorf("invalid hosts data")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOSTNAME\tIP\tSTATUS\tPROCESSES\tFIRST SEEN\tLAST SEEN")

	for _, h := range hosts {
		host := h.(map[string]interface{})

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			getString(host["hostname"]),
			getString(host["ip_address"]),
			formatActive(host["is_active"]),
			formatNumber(host["process_count"]),
			formatTime(host["first_seen"]),
			formatTime(host["last_seen"]),
		)
	}

	return w.Flush()
}

func FormatHostDetail(data map[string]interface{}) error {
	host, ok := data["host"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid host data")
	}

	fmt.Printf("Host: %s\n", getString(host["hostname"]))
	fmt.Printf("IP: %s\n", getString(host["ip_address"]))
	fmt.Printf("Status: %s\n", formatActive(host["is_active"]))
	fmt.Printf("First Seen: %s\n", formatTime(host["first_seen"]))
	fmt.Printf("Last Seen: %s\n", formatTime(host["last_seen"]))

	return nil
}

// FormatSnapshotTree prints one snapshot's process forest as an indented
// tree.
func FormatSnapshotTree(data map[string]interface{}) error {
	snapshot, ok := data["data"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid snapshot data")
	}

	fmt.Printf("Host: %s\n", getString(snapshot["hostname"]))
	fmt.Printf("Snapshot: %s\n", formatTime(snapshot["timestamp"]))
	fmt.Printf("Processes: %s  CPU: %s%%  Memory: %s MB\n\n",
		formatNumber(snapshot["total_processes"]),
		formatFloat(snapshot["total_cpu_percent"]),
		formatFloat(snapshot["total_memory_mb"]),
	)

	processes, ok := snapshot["processes"].([]interface{})
	if !ok || len(processes) == 0 {
		fmt.Println("No processes recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tNAME\tCPU %\tMEMORY\tSTATUS")
	for _, p := range processes {
		printProcessNode(w, p.(map[string]interface{}), 0)
	}

	return w.Flush()
}

func printProcessNode(w *tabwriter.Writer, node map[string]interface{}, depth int) {
	indent := strings.Repeat("  ", depth)
	marker := ""
	if depth > 0 {
		marker = "└─ "
	}

	fmt.Fprintf(w, "%s\t%s%s%s\t%s\t%s MB\t%s\n",
		formatNumber(node["pid"]),
		indent,
		marker,
		getString(node["name"]),
		formatFloat(node["cpu_percent"]),
		formatFloat(node["memory_mb"]),
		getString(node["status"]),
	)

	children, ok := node["children"].([]interface{})
	if !ok {
		return
	}
	for _, c := range children {
		printProcessNode(w, c.(map[string]interface{}), depth+1)
	}
}

// FormatSnapshotsOverview prints the latest snapshot of every host, as
// returned by the processes endpoint.
func FormatSnapshotsOverview(data map[string]interface{}) error {
	snapshots, ok := data["data"].([]interface{})
	if !ok {
		return fmt.Errorf("invalid snapshots data")
	}

	if len(snapshots) == 0 {
		fmt.Println("No snapshots recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOSTNAME\tTIMESTAMP\tPROCESSES\tCPU %\tMEMORY (MB)")

	for _, s := range snapshots {
		snap := s.(map[string]interface{})
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			getString(snap["hostname"]),
			formatTime(snap["timestamp"]),
			formatNumber(snap["total_processes"]),
			formatFloat(snap["total_cpu_percent"]),
			formatFloat(snap["total_memory_mb"]),
		)
	}

	return w.Flush()
}

func FormatStatsTable(data map[string]interface{}) error {
	fmt.Println("Collector Statistics:")
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Total Hosts:\t%s\n", formatNumber(data["total_hosts"]))
	fmt.Fprintf(w, "Active Hosts:\t%s\n", formatNumber(data["active_hosts"]))
	fmt.Fprintf(w, "Inactive Hosts:\t%s\n", formatNumber(data["inactive_hosts"]))
	fmt.Fprintf(w, "Total Snapshots:\t%s\n", formatNumber(data["total_snapshots"]))
	fmt.Fprintf(w, "Total Process Rows:\t%s\n", formatNumber(data["total_process_rows"]))

	return w.Flush()
}

func getString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func formatNumber(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	default:
		return "0"
	}
}

func formatFloat(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.1f", f)
	}
	return "0.0"
}

func formatTime(v interface{}) string {
	if s, ok := v.(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			return t.Format("2006-01-02 15:04:05")
		}
		return s
	}
	return ""
}

func formatActive(v interface{}) string {
	if active, ok := v.(bool); ok && active {
		return "active"
	}
	return "inactive"
}
