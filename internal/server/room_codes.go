package server

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// GenerateRoomCode returns a code not present in usedCodes. Codes skip the
// easily confused I, O, 0 and 1.
func GenerateRoomCode(usedCodes map[string]string) string {
	alphabetSize := big.NewInt(int64(len(codeAlphabet)))
	for {
		code := make([]byte, codeLength)
		for i := range code {
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				panic(err)
			}
			code[i] = codeAlphabet[n.Int64()]
		}
		roomCode := string(code)

		if _, taken := usedCodes[roomCode]; !taken {
			return roomCode
		}
	}
}

func ValidateRoomCode(code string) error {
	if len(code) != codeLength {
		return ErrInvalidCode
	}
	for _, ch := range code {
		if !strings.ContainsRune(codeAlphabet, ch) {
			return newGameError(ErrInvalidCode.Code, "Game codes only use letters and the digits 2-9")
		}
	}
	return nil
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
