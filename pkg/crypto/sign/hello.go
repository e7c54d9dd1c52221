package sign

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// HelloTranscript builds the canonical bytes signed in a session hello:
//
//	linkmesh:hello|v=<ver>|alg=<alg>|ts=<unix_ms>|sid=<session>|pub=<b64url>|nonce=<b64url>|name=<name>|group=<group>
//
// The session id ties the hello to one session so it cannot be replayed on another.
func HelloTranscript(version uint32, alg, sessionID string, pub, nonce []byte, tsUnixMS int64, name, group string) []byte {
	b64 := base64.RawURLEncoding
	var sb strings.Builder
	sb.Grow(96 + len(sessionID) + len(name) + len(group))
	sb.WriteString("linkmesh:hello|v=")
	sb.WriteString(strconv.FormatUint(uint64(version), 10))
	sb.WriteString("|alg=")
	sb.WriteString(strings.ToLower(strings.TrimSpace(alg)))
	sb.WriteString("|ts=")
	sb.WriteString(strconv.FormatInt(tsUnixMS, 10))
	sb.WriteString("|sid=")
	sb.WriteString(sessionID)
	sb.WriteString("|pub=")
	sb.WriteString(b64.EncodeToString(pub))
	sb.WriteString("|nonce=")
	sb.WriteString(b64.EncodeToString(nonce))
	sb.WriteString("|name=")
	sb.WriteString(name)
	sb.WriteString("|group=")
	sb.WriteString(group)
	return []byte(sb.String())
}
