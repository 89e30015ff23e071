package bot

import "github.com/bwmarrin/discordgo"

// Responder abstracts interaction replies so command handlers can be
// tested without a live gateway session.
type Responder interface {
	Respond(response *discordgo.InteractionResponse) error
}

// DiscordResponder replies through a live session.
type DiscordResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

// NewDiscordResponder binds a responder to one interaction.
func NewDiscordResponder(s *discordgo.Session, i *discordgo.Interaction) *DiscordResponder {
	return &DiscordResponder{session: s, interaction: i}
}

// Respond sends the response over the Discord API.
func (r *DiscordResponder) Respond(response *discordgo.InteractionResponse) error {
	return r.session.InteractionRespond(r.interaction, response)
}

// MockResponder records the last response for handler tests. Err, when
// set, is returned from Respond to exercise failure paths.
type MockResponder struct {
	LastResponse *discordgo.InteractionResponse
	Err          error
}

// Respond captures the response.
func (m *MockResponder) Respond(response *discordgo.InteractionResponse) error {
	m.LastResponse = response
	return m.Err
}
