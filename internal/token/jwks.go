package token

import "encoding/base64"

// JWK is the RFC 8037 OKP representation of an Ed25519 public key.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	X   string `json:"x"`
	Exp int64  `json:"exp,omitempty"` // retirement, unix seconds
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// ToJWKS converts verification keys for publication.
func ToJWKS(set []PublicKey) JWKS {
	out := JWKS{Keys: make([]JWK, 0, len(set))}
	for _, k := range set {
		j := JWK{
			Kty: "OKP",
			Crv: "Ed25519",
			Alg: "EdDSA",
			Use: "sig",
			Kid: k.ID,
			X:   base64.RawURLEncoding.EncodeToString(k.Key),
		}
		if !k.NotAfter.IsZero() {
			j.Exp = k.NotAfter.Unix()
		}
		out.Keys = append(out.Keys, j)
	}
	return out
}
