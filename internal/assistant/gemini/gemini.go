// Package gemini implements the assistant contract on Google's Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/luminara-labs/luminara/internal/assistant"
	"github.com/luminara-labs/luminara/internal/models"
)

// DefaultModel is used when no model name is supplied.
const DefaultModel = "gemini-2.5-flash"

// Client implements assistant.Assistant via google.golang.org/genai.
type Client struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// New creates a Gemini-backed assistant.
func New(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{client: client, model: model, logger: logger}, nil
}

// planSchema is the response schema the planner must satisfy.
var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"agent_name":  {Type: genai.TypeString, Description: "A creative and relevant name for the agent, under 50 characters."},
		"description": {Type: genai.TypeString, Description: "A concise, one-sentence summary of the agent's purpose."},
		"tasks": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":         {Type: genai.TypeString, Description: "A short, action-oriented title for the task (3-8 words)."},
					"description":   {Type: genai.TypeString, Description: "A detailed description of what the task involves."},
					"priority":      {Type: genai.TypeNumber, Description: "A priority score from 1 (lowest) to 5 (highest)."},
					"duration_mins": {Type: genai.TypeNumber, Description: "Estimated time in minutes to complete the task."},
					"due":           {Type: genai.TypeString, Description: "An estimated due date in YYYY-MM-DDTHH:mm:ss format, or empty if not applicable."},
					"action_type":   {Type: genai.TypeString, Description: "The type of action: 'calendar_event', 'task', or 'reminder'."},
				},
				Required: []string{"title", "description", "priority", "duration_mins", "action_type"},
			},
		},
		"confidence":  {Type: genai.TypeNumber, Description: "A score from 0 to 1 indicating the confidence in the plan's success."},
		"explanation": {Type: genai.TypeString, Description: "A brief explanation of the plan's strategy."},
	},
	Required: []string{"agent_name", "description", "tasks", "confidence", "explanation"},
}

// markTasksComplete is the function declaration used for completion detection.
var markTasksComplete = &genai.FunctionDeclaration{
	Name:        "markTasksAsComplete",
	Description: "Marks one or more tasks as complete based on the user stating they have finished them.",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"taskTitles": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "An array of titles of the tasks that the user has completed.",
			},
		},
		Required: []string{"taskTitles"},
	},
}

// GeneratePlan produces a task plan for a goal.
func (c *Client) GeneratePlan(ctx context.Context, goal string, constraints assistant.PlanConstraints) (*assistant.Plan, error) {
	prompt := c.planPrompt(goal, constraints, nil, "")
	return c.requestPlan(ctx, prompt)
}

// RevisePlan produces a new plan from a previous one plus user feedback.
func (c *Client) RevisePlan(ctx context.Context, goal string, constraints assistant.PlanConstraints, previous *assistant.Plan, feedback string) (*assistant.Plan, error) {
	prompt := c.planPrompt(goal, constraints, previous, feedback)
	return c.requestPlan(ctx, prompt)
}

func (c *Client) requestPlan(ctx context.Context, prompt string) (*assistant.Plan, error) {
	resp, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   planSchema,
		},
	)
	if err != nil {
		c.logger.Warn("plan generation request failed", zap.Error(err))
		return nil, &assistant.GenerationError{Cause: "the AI model might be unavailable or the request was invalid"}
	}

	var plan assistant.Plan
	if err := json.Unmarshal([]byte(resp.Text()), &plan); err != nil {
		c.logger.Warn("plan response was not valid JSON", zap.Error(err))
		return nil, &assistant.GenerationError{Cause: "the model returned a malformed plan"}
	}
	if err := assistant.ValidatePlan(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *Client) planPrompt(goal string, constraints assistant.PlanConstraints, previous *assistant.Plan, feedback string) string {
	min, max := assistant.TaskLimits(constraints.Granularity)

	var b strings.Builder
	b.WriteString("You are Luminara Meta-Agent. Create a plan for the user's goal.\n")
	fmt.Fprintf(&b, "Goal: %q\n\n", goal)
	b.WriteString("CONSTRAINTS:\n")
	fmt.Fprintf(&b, "- Produce between %d and %d tasks. This is a strict rule based on the user's selected granularity of %q.\n",
		min, max, constraints.Granularity)
	b.WriteString("- Each task should represent a meaningful step and have a minimum duration of 15 minutes, unless it's a very quick reminder.\n")
	b.WriteString("- Group smaller, related actions into a single, larger task.\n")
	if constraints.Deadline != "" {
		fmt.Fprintf(&b, "- The final deadline for the overall goal is: %s\n", constraints.Deadline)
	} else {
		b.WriteString("- There is no strict deadline, so schedule tasks with a reasonable, relative timeline.\n")
	}
	if constraints.DailyHours != "" {
		fmt.Fprintf(&b, "- The user has indicated they can dedicate approximately %s hours per day to this goal.\n", constraints.DailyHours)
	}
	if previous != nil {
		prev, _ := json.Marshal(previous)
		fmt.Fprintf(&b, "\nThe user rejected this previous plan:\n%s\n", prev)
		fmt.Fprintf(&b, "Their feedback: %q\nProduce a revised plan that addresses the feedback.\n", feedback)
	}
	b.WriteString("\nThe response MUST be a valid JSON object matching the provided schema. Do not include any markdown formatting or explanatory text outside of the JSON structure.\n")
	return b.String()
}

// GenerateReply produces a conversational reply. Never fails the caller: on
// any error the fixed fallback reply is returned instead.
func (c *Client) GenerateReply(ctx context.Context, agent *models.Agent, message string) string {
	var tasks strings.Builder
	for _, t := range agent.Tasks {
		fmt.Fprintf(&tasks, "- %s (%s)\n", t.Title, t.Status)
	}

	history := agent.Chat
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	var chat strings.Builder
	for _, m := range history {
		fmt.Fprintf(&chat, "%s: %s\n", m.Role, m.Content)
	}

	prompt := fmt.Sprintf(`You are the AI agent %q. Your primary goal is: %q.
You are having a conversation with the user to help them achieve this goal.

Current Task Status:
%s
Recent Conversation History:
%s
User's new message: %q

Your task is to respond to the user's message in a natural, helpful, and concise manner (under 150 words). Stay in character as their dedicated agent. Do not respond in JSON.
`, agent.Name, agent.Goal, tasks.String(), chat.String(), message)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		c.logger.Warn("reply generation failed, using fallback", zap.String("agent_id", agent.ID), zap.Error(err))
		return assistant.FallbackReply
	}
	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return assistant.FallbackReply
	}
	return reply
}

// DetectCompletions asks the model which pending tasks, if any, the user is
// claiming to have finished. A nil slice means the message is unrelated.
func (c *Client) DetectCompletions(ctx context.Context, message string, pendingTitles []string) ([]string, error) {
	quoted := make([]string, len(pendingTitles))
	for i, t := range pendingTitles {
		quoted[i] = fmt.Sprintf("%q", t)
	}

	prompt := fmt.Sprintf(`The user sent this message: %q.
Review the message to determine if the user is stating they have completed one or more of the following pending tasks: [%s].
If they have, call the 'markTasksAsComplete' function with an array containing the titles of all completed tasks.
If the message is not about completing a task, do not call any function.`, message, strings.Join(quoted, ", "))

	resp, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{markTasksComplete}}},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("completion detection request: %w", err)
	}

	for _, call := range resp.FunctionCalls() {
		if call.Name != "markTasksAsComplete" {
			continue
		}
		raw, ok := call.Args["taskTitles"]
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("completion detection: taskTitles is %T, not an array", raw)
		}
		var titles []string
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				titles = append(titles, s)
			}
		}
		if len(titles) == 0 {
			return nil, nil
		}
		return titles, nil
	}
	return nil, nil
}
