package moderation

import (
	"strconv"
	"strings"

	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
)

// Token grammar:
//
//	token  = "rep_ignore" | "rep_" action "_" userID "_" messageID "_" chatID
//	action = "mute" | "ban" | "del"
//
// IDs are canonical base-10 integers. The legacy "rep_mute_30_..." form is accepted on parse.
const (
	tokenPrefix    = "rep"
	tokenSeparator = "_"
	tokenIgnore    = "rep_ignore"
	legacyMuteTag  = "30"

	// MaxTokenLen is the callback data limit of Telegram inline buttons.
	MaxTokenLen = 64
)

type Outcome string

const (
	OutcomeMute30  Outcome = "mute"
	OutcomeBan     Outcome = "ban"
	OutcomeDelete  Outcome = "del"
	OutcomeIgnored Outcome = "ignore"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeMute30, OutcomeBan, OutcomeDelete, OutcomeIgnored:
		return true
	}
	return false
}

// ReportKey is the identity of a report record.
type ReportKey struct {
	TargetUserID int64
	MessageID    int
	ChatID       int64
}

func (k ReportKey) validate() error {
	switch {
	case k.TargetUserID <= 0:
		return apperrors.PolicyInput("invalid target user id %d", k.TargetUserID)
	case k.MessageID <= 0:
		return apperrors.PolicyInput("invalid target message id %d", k.MessageID)
	case k.ChatID == 0:
		return apperrors.PolicyInput("invalid chat id %d", k.ChatID)
	}
	return nil
}

func (k ReportKey) Message() MessageRef {
	return MessageRef{ChatID: k.ChatID, MessageID: k.MessageID}
}

// Token is the decoded payload of a resolution button. Key is zero for OutcomeIgnored.
type Token struct {
	Outcome Outcome
	Key     ReportKey
}

func IsReportToken(data string) bool {
	return strings.HasPrefix(data, tokenPrefix+tokenSeparator)
}

func EncodeToken(t Token) (string, error) {
	if t.Outcome == OutcomeIgnored {
		return tokenIgnore, nil
	}
	if !t.Outcome.Valid() {
		return "", apperrors.PolicyInput("unknown outcome %q", t.Outcome)
	}
	if err := t.Key.validate(); err != nil {
		return "", err
	}
	token := strings.Join([]string{
		tokenPrefix,
		string(t.Outcome),
		strconv.FormatInt(t.Key.TargetUserID, 10),
		strconv.Itoa(t.Key.MessageID),
		strconv.FormatInt(t.Key.ChatID, 10),
	}, tokenSeparator)
	if len(token) > MaxTokenLen {
		return "", apperrors.PolicyInput("token exceeds %d bytes", MaxTokenLen)
	}
	return token, nil
}

func ParseToken(data string) (Token, error) {
	if data == tokenIgnore {
		return Token{Outcome: OutcomeIgnored}, nil
	}
	if len(data) > MaxTokenLen {
		return Token{}, apperrors.PolicyInput("token exceeds %d bytes", MaxTokenLen)
	}

	fields := strings.Split(data, tokenSeparator)
	if len(fields) < 2 || fields[0] != tokenPrefix {
		return Token{}, apperrors.PolicyInput("not a report token: %q", data)
	}

	outcome := Outcome(fields[1])
	switch outcome {
	case OutcomeMute30, OutcomeBan, OutcomeDelete:
	default:
		return Token{}, apperrors.PolicyInput("unknown report action %q", fields[1])
	}

	ids := fields[2:]
	if outcome == OutcomeMute30 && len(ids) == 4 && ids[0] == legacyMuteTag {
		ids = ids[1:]
	}
	if len(ids) != 3 {
		return Token{}, apperrors.PolicyInput("report token %q has %d id fields, want 3", data, len(ids))
	}

	userID, err := parseCanonicalInt(ids[0])
	if err != nil {
		return Token{}, err
	}
	messageID, err := parseCanonicalInt(ids[1])
	if err != nil {
		return Token{}, err
	}
	if messageID > int64(^uint32(0)>>1) {
		return Token{}, apperrors.PolicyInput("message id %d out of range", messageID)
	}
	chatID, err := parseCanonicalInt(ids[2])
	if err != nil {
		return Token{}, err
	}

	key := ReportKey{TargetUserID: userID, MessageID: int(messageID), ChatID: chatID}
	if err := key.validate(); err != nil {
		return Token{}, err
	}
	return Token{Outcome: outcome, Key: key}, nil
}

func parseCanonicalInt(field string) (int64, error) {
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil || strconv.FormatInt(v, 10) != field {
		return 0, apperrors.PolicyInput("invalid id field %q", field)
	}
	return v, nil
}
