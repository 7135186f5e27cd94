package inference

// Role is the speaker of a Message, using the OpenAI role names.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

func NewSystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }
func NewUserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }
func NewAssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// SplitSystem separates system instructions from the dialogue turns.
// Multiple system messages are joined with blank lines.
func SplitSystem(msgs []Message) (system string, turns []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
