package model

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// ConversationTurn is one entry of the transcript. The transcript is owned by the
// caller and read-only to this engine.
type ConversationTurn struct {
	Speaker     Speaker `json:"speaker"`
	Text        string  `json:"text"`
	Ordinal     int     `json:"ordinal"`
	Interrupted bool    `json:"interrupted,omitempty"`
}

// Transcript is the ordered sequence of turns of one conversation.
type Transcript []ConversationTurn

// LastUserMessage returns the text of the most recent user turn, or "" if the
// transcript contains none.
func (t Transcript) LastUserMessage() string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Speaker == SpeakerUser {
			return t[i].Text
		}
	}
	return ""
}
