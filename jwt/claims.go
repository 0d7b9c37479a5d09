package jwt

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// Claim keys carried in the token payload.
const (
	ClaimSubject    = "sub"
	ClaimCreated    = "created"
	ClaimExpiration = "exp"
)

// Claims is the decoded, signature-verified payload of a token.
//
// Subject, Created and ExpiresAt are zero when the corresponding claim is absent; use the
// Has* methods to tell absence from a zero value.
type Claims struct {
	Subject   string
	Created   time.Time
	ExpiresAt time.Time

	hasSubject bool
	hasCreated bool
	hasExpiry  bool
	raw        gjwt.MapClaims
}

// HasSubject reports whether the sub claim was present.
func (c *Claims) HasSubject() bool { return c != nil && c.hasSubject }

// HasCreated reports whether the created claim was present and numeric.
func (c *Claims) HasCreated() bool { return c != nil && c.hasCreated }

// HasExpiry reports whether the exp claim was present and numeric.
func (c *Claims) HasExpiry() bool { return c != nil && c.hasExpiry }

// Raw returns a copy of every claim in the payload, including ones this package does not
// interpret.
func (c *Claims) Raw() map[string]any {
	if c == nil {
		return nil
	}
	out := make(map[string]any, len(c.raw))
	maps.Copy(out, c.raw)
	return out
}

func newClaims(raw gjwt.MapClaims) (*Claims, error) {
	c := &Claims{raw: raw}

	if v, ok := raw[ClaimSubject]; ok {
		sub, isString := v.(string)
		if !isString {
			return nil, fmt.Errorf("%w: sub is %T", ErrClaimMissing, v)
		}
		c.Subject = sub
		c.hasSubject = true
	}

	if v, ok := raw[ClaimCreated]; ok {
		ms, err := millisFrom(v)
		if err != nil {
			return nil, fmt.Errorf("%w: created: %v", ErrClaimMissing, err)
		}
		c.Created = time.UnixMilli(ms)
		c.hasCreated = true
	}

	exp, err := raw.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: exp: %v", ErrClaimMissing, err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
		c.hasExpiry = true
	}

	return c, nil
}

func millisFrom(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatMillis(f)
	case float64:
		return floatMillis(n)
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func floatMillis(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range value %v", f)
	}
	return int64(f), nil
}
