package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/luminara-labs/luminara/internal/models"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agents",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new agent from a goal",
	RunE:  runAgentCreate,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE:  runAgentList,
}

var agentShowCmd = &cobra.Command{
	Use:   "show [agent-id]",
	Short: "Show agent details",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentShow,
}

var agentChatCmd = &cobra.Command{
	Use:   "chat [agent-id] [message]",
	Short: "Send a chat message to an agent",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAgentChat,
}

var agentExecuteCmd = &cobra.Command{
	Use:   "execute [agent-id] [task-id]",
	Short: "Execute one of an agent's tasks",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgentExecute,
}

var agentReviseCmd = &cobra.Command{
	Use:   "revise [agent-id] [feedback]",
	Short: "Revise an agent's plan with feedback",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAgentRevise,
}

var agentToggleCmd = &cobra.Command{
	Use:   "toggle [agent-id]",
	Short: "Toggle an agent between active and paused",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentToggle,
}

var agentDeleteCmd = &cobra.Command{
	Use:   "delete [agent-id]",
	Short: "Archive an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentDelete,
}

var agentRestoreCmd = &cobra.Command{
	Use:   "restore [agent-id]",
	Short: "Restore an archived agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentRestore,
}

var (
	createDeadline    string
	createPriority    string
	createGranularity string
	createDailyHours  string
	listAll           bool
)

func init() {
	agentCmd.AddCommand(agentCreateCmd, agentListCmd, agentShowCmd, agentChatCmd,
		agentExecuteCmd, agentReviseCmd, agentToggleCmd, agentDeleteCmd, agentRestoreCmd)

	agentCreateCmd.Flags().StringVar(&createDeadline, "deadline", "", "Deadline (RFC3339)")
	agentCreateCmd.Flags().StringVar(&createPriority, "priority", "", "Priority (low, medium, high)")
	agentCreateCmd.Flags().StringVar(&createGranularity, "granularity", "", "Plan granularity (minimal, balanced, detailed)")
	agentCreateCmd.Flags().StringVar(&createDailyHours, "daily-hours", "", "Hours available per day")

	agentListCmd.Flags().BoolVar(&listAll, "all", false, "Include archived agents")
}

func runAgentCreate(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")
	if strings.TrimSpace(goal) == "" {
		return fmt.Errorf("goal required: luminara agent create <goal>")
	}

	body := map[string]interface{}{"goal": goal}
	if createDeadline != "" {
		body["deadline"] = createDeadline
	}
	if createPriority != "" {
		body["priority"] = createPriority
	}
	if createGranularity != "" {
		body["granularity"] = createGranularity
	}
	if createDailyHours != "" {
		body["daily_hours"] = createDailyHours
	}

	resp, err := apiPost("/agents", body)
	if err != nil {
		return err
	}

	var agent models.Agent
	if err := json.Unmarshal(resp, &agent); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	fmt.Printf("Created agent: %s (%s)\n", agent.Name, truncateID(agent.ID))
	printTasks(&agent)
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	path := "/agents"
	if listAll {
		path += "?include_deleted=true"
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var agents []models.Agent
	if err := json.Unmarshal(resp, &agents); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	if len(agents) == 0 {
		fmt.Println("No agents found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tTASKS")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\n",
			truncateID(a.ID), truncate(a.Name, 40), a.Status, a.Progress, len(a.Tasks))
	}
	w.Flush()
	return nil
}

func runAgentShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/agents/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}

	var agent models.Agent
	if err := json.Unmarshal(resp, &agent); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	fmt.Printf("ID:          %s\n", agent.ID)
	fmt.Printf("Name:        %s\n", agent.Name)
	fmt.Printf("Description: %s\n", agent.Description)
	fmt.Printf("Goal:        %s\n", agent.Goal)
	fmt.Printf("Status:      %s\n", agent.Status)
	fmt.Printf("Progress:    %d%%\n", agent.Progress)
	if agent.Deadline != nil {
		fmt.Printf("Deadline:    %s\n", agent.Deadline.Format("2006-01-02 15:04"))
	}
	fmt.Printf("Created:     %s\n", agent.CreatedAt.Format("2006-01-02 15:04"))

	printTasks(&agent)

	if len(agent.Chat) > 0 {
		fmt.Println("\nRecent chat:")
		start := len(agent.Chat) - 6
		if start < 0 {
			start = 0
		}
		for _, m := range agent.Chat[start:] {
			fmt.Printf("  [%s] %s\n", m.Role, truncate(m.Content, 100))
		}
	}
	return nil
}

func runAgentChat(cmd *cobra.Command, args []string) error {
	message := strings.Join(args[1:], " ")

	resp, err := apiPost("/agents/"+url.PathEscape(args[0])+"/message", map[string]string{"message": message})
	if err != nil {
		return err
	}

	var agent models.Agent
	if err := json.Unmarshal(resp, &agent); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	if len(agent.Chat) == 0 {
		return nil
	}
	last := agent.Chat[len(agent.Chat)-1]
	fmt.Printf("[%s] %s\n", last.Role, last.Content)
	return nil
}

func runAgentExecute(cmd *cobra.Command, args []string) error {
	path := "/agents/" + url.PathEscape(args[0]) + "/tasks/" + url.PathEscape(args[1]) + "/execute"
	resp, err := apiPost(path, nil)
	if err != nil {
		return err
	}

	var result struct {
		Outcome models.ActionOutcome `json:"outcome"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	fmt.Printf("Execution outcome: %s\n", result.Outcome)
	return nil
}

func runAgentRevise(cmd *cobra.Command, args []string) error {
	feedback := strings.Join(args[1:], " ")

	resp, err := apiPost("/agents/"+url.PathEscape(args[0])+"/revise", map[string]string{"feedback": feedback})
	if err != nil {
		return err
	}

	var agent models.Agent
	if err := json.Unmarshal(resp, &agent); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	fmt.Printf("Revised agent: %s\n", agent.Name)
	printTasks(&agent)
	return nil
}

func runAgentToggle(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/agents/"+url.PathEscape(args[0])+"/toggle", nil)
	if err != nil {
		return err
	}

	var agent models.Agent
	if err := json.Unmarshal(resp, &agent); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	fmt.Printf("Agent %s is now %s\n", truncateID(args[0]), agent.Status)
	return nil
}

func runAgentDelete(cmd *cobra.Command, args []string) error {
	if _, err := apiDelete("/agents/" + url.PathEscape(args[0])); err != nil {
		return err
	}
	fmt.Printf("Archived agent %s\n", truncateID(args[0]))
	return nil
}

func runAgentRestore(cmd *cobra.Command, args []string) error {
	if _, err := apiPost("/agents/"+url.PathEscape(args[0])+"/restore", nil); err != nil {
		return err
	}
	fmt.Printf("Restored agent %s\n", truncateID(args[0]))
	return nil
}

// --- Helpers ---

func printTasks(agent *models.Agent) {
	if len(agent.Tasks) == 0 {
		return
	}

	fmt.Println("\nTasks:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tSTATUS")
	for _, t := range agent.Tasks {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", truncateID(t.ID), truncate(t.Title, 50), t.Status)
	}
	w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
