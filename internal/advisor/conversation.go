package advisor

import "strings"

// Roles accepted by the gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is an immutable chat transcript. Reduce returns new values
// and never modifies its input.
type Conversation struct {
	Messages []Message `json:"messages"`
	Pending  bool      `json:"pending"`
	Error    string    `json:"error,omitempty"`
}

// Action is an event applied to a Conversation.
type Action interface {
	isAction()
}

// UserSubmitted adds a user turn and marks the conversation as waiting.
type UserSubmitted struct{ Content string }

// AssistantReplied adds the assistant turn and clears the waiting flag.
type AssistantReplied struct{ Content string }

// RequestFailed records a failed exchange; the user turn is kept.
type RequestFailed struct{ Error string }

// Reset clears the conversation.
type Reset struct{}

func (UserSubmitted) isAction()    {}
func (AssistantReplied) isAction() {}
func (RequestFailed) isAction()    {}
func (Reset) isAction()            {}

// Reduce applies action to conv. Blank submissions and submissions while a
// reply is pending are ignored.
func Reduce(conv Conversation, action Action) Conversation {
	switch a := action.(type) {
	case UserSubmitted:
		content := strings.TrimSpace(a.Content)
		if content == "" || conv.Pending {
			return conv
		}
		return Conversation{
			Messages: appendMessage(conv.Messages, Message{Role: RoleUser, Content: content}),
			Pending:  true,
		}

	case AssistantReplied:
		if !conv.Pending {
			return conv
		}
		return Conversation{
			Messages: appendMessage(conv.Messages, Message{Role: RoleAssistant, Content: a.Content}),
		}

	case RequestFailed:
		return Conversation{
			Messages: appendMessage(conv.Messages),
			Error:    a.Error,
		}

	case Reset:
		return Conversation{}
	}
	return conv
}

func appendMessage(messages []Message, more ...Message) []Message {
	out := make([]Message, 0, len(messages)+len(more))
	out = append(out, messages...)
	return append(out, more...)
}

// NormalizeRole maps anything but system, user and assistant onto user.
func NormalizeRole(role string) string {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return role
	}
	return RoleUser
}
