package discord

// Component types and button styles used by cards.
const (
	ComponentActionRow = 1
	ComponentButton    = 2

	ButtonPrimary   = 1
	ButtonSecondary = 2
	ButtonSuccess   = 3
	ButtonDanger    = 4
)

// maxButtonsPerRow is Discord's limit for one action row.
const maxButtonsPerRow = 5

// Interaction and response types.
const (
	InteractionPing             = 1
	InteractionMessageComponent = 3

	ResponsePong                  = 1
	ResponseChannelMessage        = 4
	ResponseDeferredUpdateMessage = 6
)

// FlagEphemeral hides a follow-up from everyone but the clicking user.
const FlagEphemeral = 1 << 6

// Embed is a rich content block.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is one name/value row of an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Component is an action row or a button.
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Button is a shorthand for a button component.
func Button(style int, label, customID string) Component {
	return Component{Type: ComponentButton, Style: style, Label: label, CustomID: customID}
}

// Rows packs buttons into as many action rows as needed.
func Rows(buttons ...Component) []Component {
	var rows []Component
	for len(buttons) > 0 {
		n := min(len(buttons), maxButtonsPerRow)
		rows = append(rows, Component{Type: ComponentActionRow, Components: buttons[:n]})
		buttons = buttons[n:]
	}
	return rows
}

// AllowedMentions restricts which mentions in content actually ping.
type AllowedMentions struct {
	Parse []string `json:"parse"`
	Users []string `json:"users,omitempty"`
}

// Message is the body of a webhook execute/edit call. A nil Components is sent
// as an empty list, which removes existing buttons on edit.
type Message struct {
	Content         string           `json:"content"`
	Embeds          []Embed          `json:"embeds,omitempty"`
	Components      []Component      `json:"components"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
	Flags           int              `json:"flags,omitempty"`
}

// Interaction is the subset of an incoming interaction payload the service reads.
type Interaction struct {
	ID      string `json:"id"`
	Type    int    `json:"type"`
	Token   string `json:"token"`
	Data    struct {
		CustomID string `json:"custom_id"`
	} `json:"data"`
	Message *struct {
		ID string `json:"id"`
	} `json:"message,omitempty"`
	Member *struct {
		User User `json:"user"`
	} `json:"member,omitempty"`
	User *User `json:"user,omitempty"`
}

// User identifies who clicked.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Actor returns the clicking user from either the guild member or DM field.
func (i *Interaction) Actor() User {
	if i.Member != nil {
		return i.Member.User
	}
	if i.User != nil {
		return *i.User
	}
	return User{}
}

// MessageID returns the id of the message the component belongs to.
func (i *Interaction) MessageID() string {
	if i.Message == nil {
		return ""
	}
	return i.Message.ID
}

// InteractionResponse is the synchronous reply to an interaction.
type InteractionResponse struct {
	Type int      `json:"type"`
	Data *Message `json:"data,omitempty"`
}
