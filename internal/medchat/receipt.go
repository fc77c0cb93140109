package medchat

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"swarmgate/internal/inference"
)

const (
	agentName  = "swarm-med"
	operatorID = "0.0.10291827"

	isoMillis    = "2006-01-02T15:04:05.000Z07:00"
	minuteLayout = "2006-01-02T15:04"
)

// Receipt is the audit record returned with every guarded answer or refusal.
type Receipt struct {
	TaskID      string           `json:"task_id"`
	TaskHash    string           `json:"task_hash"`
	Status      string           `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	PHITypes    []string         `json:"phi_types,omitempty"`
	Mode        Mode             `json:"mode,omitempty"`
	Agent       string           `json:"agent,omitempty"`
	AgentChain  []string         `json:"agent_chain,omitempty"`
	ModelUsed   string           `json:"model_used,omitempty"`
	Backend     string           `json:"backend,omitempty"`
	ContentHash string           `json:"content_hash,omitempty"`
	PromptHash  string           `json:"prompt_hash,omitempty"`
	ExecutionMS *int64           `json:"execution_ms,omitempty"`
	Tokens      *inference.Usage `json:"tokens,omitempty"`
	Timestamp   string           `json:"timestamp"`
	Operator    string           `json:"operator"`
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func normalize(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}

func timestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// refusalReceipt records a prompt that was never sent to a model.
func refusalReceipt(taskID, prompt string, mode Mode, status, reason string, phiTypes []string, now time.Time) Receipt {
	suffix := "emergency"
	if status == "blocked" {
		suffix = "phi_blocked"
	}
	return Receipt{
		TaskID:    taskID,
		TaskHash:  sha256Hex(normalize(prompt) + "|" + string(mode) + "|" + suffix),
		Status:    status,
		Reason:    reason,
		PHITypes:  phiTypes,
		Timestamp: timestamp(now),
		Agent:     agentName,
		Operator:  operatorID,
	}
}

// completedReceipt binds the prompt, the model and the answer within a
// one-minute window.
func completedReceipt(taskID, prompt string, mode Mode, resp *inference.Response, elapsed time.Duration, now time.Time) Receipt {
	contentHash := sha256Hex(resp.Text)
	window := now.UTC().Format(minuteLayout)
	ms := elapsed.Milliseconds()
	usage := resp.Usage
	return Receipt{
		TaskID:      taskID,
		TaskHash:    sha256Hex(normalize(prompt) + "|" + string(mode) + "|" + agentName + "|" + resp.Model + "|" + contentHash + "|" + window),
		Status:      "completed",
		Mode:        mode,
		AgentChain:  []string{"swarm-appliance", agentName},
		ModelUsed:   resp.Model,
		Backend:     resp.Backend,
		ContentHash: contentHash,
		PromptHash:  sha256Hex(normalize(prompt))[:16],
		ExecutionMS: &ms,
		Tokens:      &usage,
		Timestamp:   timestamp(now),
		Operator:    operatorID,
	}
}
