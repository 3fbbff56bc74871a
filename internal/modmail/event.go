package modmail

// User identifies a chat account. ID is the routing key; Tag is the
// display form recorded in transcripts; Name is used for channel names.
type User struct {
	ID   string
	Tag  string
	Name string
}

// Event is an inbound message. It is either a DirectMessage or a
// ChannelMessage.
type Event interface {
	isEvent()
}

// DirectMessage is a private message from an end user to the bot.
type DirectMessage struct {
	User User
	Text string
}

// ChannelMessage is a message posted inside a server channel.
type ChannelMessage struct {
	ChannelID    string
	Actor        User
	Text         string
	ActorIsStaff bool
}

func (DirectMessage) isEvent()  {}
func (ChannelMessage) isEvent() {}
