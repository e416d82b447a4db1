package app

import "math/rand"

// Session codes are short, human-typeable and uppercase so they can be read
// out loud and typed on a phone.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SessionCodeLength matches the share codes participants type in.
const SessionCodeLength = 8

func newSessionCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
