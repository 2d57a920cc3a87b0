package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// GeneratedLength is the length of generated passwords.
	GeneratedLength = 12

	upperCharacters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerCharacters = "abcdefghijklmnopqrstuvwxyz"
	digitCharacters = "0123456789"
	allCharacters   = upperCharacters + lowerCharacters + digitCharacters + SpecialCharacters
)

// Generate returns a random password satisfying ValidatePassword.
func Generate() (string, error) {
	generated := make([]byte, 0, GeneratedLength)
	for _, characterClass := range []string{upperCharacters, lowerCharacters, digitCharacters, SpecialCharacters} {
		character, pickErr := pick(characterClass)
		if pickErr != nil {
			return "", pickErr
		}
		generated = append(generated, character)
	}
	for len(generated) < GeneratedLength {
		character, pickErr := pick(allCharacters)
		if pickErr != nil {
			return "", pickErr
		}
		generated = append(generated, character)
	}
	for index := len(generated) - 1; index > 0; index-- {
		swapIndex, randomErr := randomIndex(index + 1)
		if randomErr != nil {
			return "", randomErr
		}
		generated[index], generated[swapIndex] = generated[swapIndex], generated[index]
	}
	return string(generated), nil
}

func pick(characters string) (byte, error) {
	index, randomErr := randomIndex(len(characters))
	if randomErr != nil {
		return 0, randomErr
	}
	return characters[index], nil
}

func randomIndex(upperBound int) (int, error) {
	value, randomErr := rand.Int(rand.Reader, big.NewInt(int64(upperBound)))
	if randomErr != nil {
		return 0, fmt.Errorf("password: read random: %w", randomErr)
	}
	return int(value.Int64()), nil
}
