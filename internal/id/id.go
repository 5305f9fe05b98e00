package id

import (
	"crypto/rand"
	"strconv"
	"time"
)

const chars = "abcdefghijklmnopqrstuvwxyz0123456789"

// SessionID returns a locally generated session id of the form
// "local-{unix millis base36}-{8 random chars}".
func SessionID(now time.Time) string {
	return "local-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + randomString(8)
}

// SessionQuestionID is stable for the lifetime of the session.
func SessionQuestionID(sessionID string, position int) string {
	return sessionID + ":q:" + strconv.Itoa(position)
}

func randomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	for i := range b {
		b[i] = chars[b[i]%byte(len(chars))]
	}
	return string(b)
}
