package stream

import (
	"strings"

	"github.com/papercomputeco/capsule/pkg/llm"
)

const (
	noticePrefix  = "*Connection lost.*"
	defaultDetail = "Please try again."
)

// FailureNotice is the user-visible text shown in place of, or after, a
// reply that could not be delivered. The error text is used as the detail.
func FailureNotice(err error) string {
	detail := ""
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	if detail == "" {
		detail = defaultDetail
	}
	return noticePrefix + " " + detail
}

// NoticeTurn wraps FailureNotice in an assistant turn.
func NoticeTurn(err error) llm.Turn {
	return llm.NewAssistantTurn(FailureNotice(err))
}

// IsNotice reports whether turn is a failure notice.
func IsNotice(turn llm.Turn) bool {
	return turn.Role == llm.RoleAssistant && strings.HasPrefix(turn.Content, noticePrefix+" ")
}
