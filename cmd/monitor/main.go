package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// LogEntry matches the Zap JSON structure
type LogEntry struct {
	Level    string `json:"level"`
	Msg      string `json:"msg"`
	TaskID   string `json:"task_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	WorkerID string `json:"worker_id"`
	Actor    string `json:"actor"`
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

func main() {
	fmt.Println(colorCyan + "Dispatch Activity Monitor Starting..." + colorReset)
	fmt.Println(colorGray + "Listening for task events from dispatcher and scheduler..." + colorReset)
	fmt.Println("-------------------------------------------------------------------------")

	cmd := exec.Command("docker", "compose", "logs", "-f", "--no-color", "dispatcher", "scheduler")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		fmt.Printf("Error creating stdout pipe: %v\n", err)
		return
	}

	if err := cmd.Start(); err != nil {
		fmt.Printf("Error starting docker logs command: %v\n", err)
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()

		// Compose log format: "service-1  | {JSON}"
		parts := strings.SplitN(line, "|", 2)
		if len(parts) < 2 {
			continue
		}

		serviceLabel := strings.TrimSpace(parts[0])
		jsonPayload := strings.TrimSpace(parts[1])

		var entry LogEntry
		if err := json.Unmarshal([]byte(jsonPayload), &entry); err != nil {
			continue
		}

		prettify(serviceLabel, entry)
	}

	if err := cmd.Wait(); err != nil {
		fmt.Printf("Docker command exited: %v\n", err)
	}
}

func prettify(serviceLabel string, entry LogEntry) {
	source := colorBlue + "DISPATCH" + colorReset
	if strings.Contains(serviceLabel, "scheduler") {
		source = colorPurple + "SWEEP" + colorReset
	}

	switch {
	case strings.Contains(entry.Msg, "Task transitioned"):
		arrow := fmt.Sprintf("%s -> %s", entry.From, entry.To)
		color := colorYellow
		if entry.To == "COMPLETED" {
			color = colorGreen
		} else if entry.To == "OVERDUE" || entry.To == "REJECTED" {
			color = colorRed
		}
		fmt.Printf("[%s] "+color+"%-24s"+colorReset+" %s (by %s)\n", source, arrow, entry.TaskID, entry.Actor)
	case strings.Contains(entry.Msg, "Task auto-reassigned"):
		fmt.Printf("[%s] "+colorPurple+"Reassigned:"+colorReset+" %s\n", source, entry.TaskID)
	case strings.Contains(entry.Msg, "Unaccepted task escalated"):
		fmt.Printf("[%s] "+colorRed+"Escalated:"+colorReset+"  %s\n", source, entry.TaskID)
	case strings.Contains(entry.Msg, "heartbeat"):
		// Skip heartbeats to keep it clean
	case entry.Level == "error":
		fmt.Printf("[%s] "+colorRed+"ERROR:"+colorReset+" %s\n", source, entry.Msg)
	}
}
