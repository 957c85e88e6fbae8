package util

import sgo "github.com/gagliardetto/solana-go"

// Zero is the all-zero public key, never a valid routing target.
func Zero() sgo.PublicKey {
	return sgo.PublicKey{}
}

func IsZero(id sgo.PublicKey) bool {
	return id.Equals(Zero())
}
