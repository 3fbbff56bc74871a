package modmail

import (
	"regexp"
	"strings"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdReply
	cmdClose
	cmdLogs
	cmdCanned
)

func (k commandKind) String() string {
	switch k {
	case cmdReply:
		return "!r"
	case cmdClose:
		return "!c"
	case cmdLogs:
		return "!logs"
	case cmdCanned:
		return "canned notice"
	default:
		return "note"
	}
}

// CannedNotice is a fixed text staff can send by typing its phrase.
type CannedNotice struct {
	Phrase string `json:"phrase"`
	Text   string `json:"text"`
}

// DefaultCannedNotices are used when no notices are configured.
var DefaultCannedNotices = []CannedNotice{
	{
		Phrase: "awaiting response",
		Text:   "Staff Notice: We are still awaiting your response. Reply to this message so we can keep helping you.",
	},
	{
		Phrase: "greeting",
		Text:   "Staff Notice: Hello! Thanks for reaching out. A staff member will be with you shortly.",
	},
}

type command struct {
	kind    commandKind
	payload string // !r text
	target  string // !logs user id
	notice  CannedNotice
	invalid bool // !logs with an unparseable argument
}

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$|^(\d+)$`)

func parseCommand(text string, canned []CannedNotice) command {
	trimmed := strings.TrimSpace(text)

	switch {
	case trimmed == "!r":
		return command{kind: cmdReply}
	case strings.HasPrefix(trimmed, "!r ") || strings.HasPrefix(trimmed, "!r\n"):
		return command{kind: cmdReply, payload: strings.TrimSpace(trimmed[len("!r"):])}
	case trimmed == "!c":
		return command{kind: cmdClose}
	case trimmed == "!logs":
		return command{kind: cmdLogs}
	case strings.HasPrefix(trimmed, "!logs "):
		arg := strings.TrimSpace(trimmed[len("!logs"):])
		id, ok := parseMention(arg)
		return command{kind: cmdLogs, target: id, invalid: !ok}
	}

	for _, n := range canned {
		if strings.EqualFold(trimmed, n.Phrase) {
			return command{kind: cmdCanned, notice: n}
		}
	}
	return command{kind: cmdNone}
}

func parseMention(s string) (string, bool) {
	m := mentionPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}
