package llm

import "context"

// Completer is the chat-completion capability the resolution graph
// programs against. *Client implements it over the Anthropic SDK.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteStream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string)) (string, error)
	Converse(systemPrompt string, tools []ToolDef) Conversationalist
}

// Conversationalist is a multi-turn tool-calling session.
type Conversationalist interface {
	AddUser(text string)
	AddToolResult(callID, content string, isError bool)
	Step(ctx context.Context) (*Turn, error)
}

// Converse starts a tool-bound conversation as a Conversationalist.
func (c *Client) Converse(systemPrompt string, tools []ToolDef) Conversationalist {
	return c.NewConversation(systemPrompt, tools)
}
