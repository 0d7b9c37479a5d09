package jwt

import (
	"errors"
	"fmt"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultTTL is the lifetime applied by GenerateToken and GenerateTokenFor.
const DefaultTTL = 86400 * time.Second

// Algorithm is the only JWS algorithm the codec signs with or accepts.
const Algorithm = "HS512"

const minSecretLength = 8

// Subject is anything that can name the owner of a token.
type Subject interface {
	Username() string
}

// Identity is the part of a user record the validation predicates depend on.
// A zero LastPasswordReset means the password was never reset.
type Identity interface {
	Username() string
	LastPasswordReset() time.Time
}

// Config holds the codec's signing parameters.
//
// Secret is required. DefaultTTL falls back to [DefaultTTL] when zero, Now to time.Now and
// Logger to a no-op logger.
type Config struct {
	Secret     []byte
	DefaultTTL time.Duration
	Now        func() time.Time
	Logger     *zap.Logger
}

// Codec issues, parses and checks HS512-signed tokens.
//
// A Codec is immutable after NewCodec and safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
	parser *gjwt.Parser
}

// NewCodec validates cfg and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
	}
	if cfg.DefaultTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret: secret,
		ttl:    cfg.DefaultTTL,
		now:    cfg.Now,
		logger: cfg.Logger.Named("jwt"),
		// Claim validation is done by the codec itself so that expired tokens still parse
		// and can be refreshed or classified.
		parser: gjwt.NewParser(
			gjwt.WithValidMethods([]string{Algorithm}),
			gjwt.WithoutClaimsValidation(),
			gjwt.WithJSONNumber(),
			gjwt.WithStrictDecoding(),
		),
	}, nil
}

// DefaultTTL returns the lifetime applied to newly generated tokens.
func (c *Codec) DefaultTTL() time.Duration { return c.ttl }

// GenerateToken issues a token whose subject is sub's username.
func (c *Codec) GenerateToken(sub Subject) (string, error) {
	if sub == nil || sub.Username() == "" {
		return "", fmt.Errorf("%w: username", ErrClaimMissing)
	}
	return c.issue(sub.Username(), c.ttl)
}

// GenerateTokenFor issues a token whose subject is arbitrary caller content.
func (c *Codec) GenerateTokenFor(content string) (string, error) {
	return c.issue(content, c.ttl)
}

// GenerateTokenWithTTL is GenerateTokenFor with an explicit lifetime. A non-positive ttl
// uses the default.
func (c *Codec) GenerateTokenWithTTL(content string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.issue(content, ttl)
}

// RefreshToken re-issues token with created set to now and exp set to now+ttl. Every other
// claim is copied unchanged. Expired tokens are refreshed as long as their signature and
// structure are valid; callers that need an eligibility check use CheckRefreshable first.
//
// The returned string is a new token; nothing about the old one is preserved beyond its claims.
func (c *Codec) RefreshToken(token string, ttl time.Duration) (string, error) {
	claims, err := c.Parse(token)
	if err != nil {
		c.logFailure("refresh", err)
		return "", err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.now()
	next := claims.Raw()
	next[ClaimCreated] = now.UnixMilli()
	next[ClaimExpiration] = gjwt.NewNumericDate(now.Add(ttl))

	return c.sign(next)
}

// Parse verifies the signature and structure of token and decodes its claims. It does not
// check expiry. The token must be exact: surrounding whitespace makes it malformed.
func (c *Codec) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	parsed, err := c.parser.ParseWithClaims(token, gjwt.MapClaims{}, func(t *gjwt.Token) (interface{}, error) {
		if t.Method.Alg() != Algorithm {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	raw, ok := parsed.Claims.(gjwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}
	return newClaims(raw)
}

// Verify is Parse followed by an expiry check.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return nil, err
	}
	if err := c.checkExpiry(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// UsernameFromToken returns the sub claim.
func (c *Codec) UsernameFromToken(token string) (string, error) {
	claims, err := c.Parse(token)
	if err != nil {
		c.logFailure("username", err)
		return "", err
	}
	if !claims.HasSubject() {
		return "", fmt.Errorf("%w: sub", ErrClaimMissing)
	}
	return claims.Subject, nil
}

// CreatedFromToken returns the created claim.
func (c *Codec) CreatedFromToken(token string) (time.Time, error) {
	claims, err := c.Parse(token)
	if err != nil {
		c.logFailure("created", err)
		return time.Time{}, err
	}
	if !claims.HasCreated() {
		return time.Time{}, fmt.Errorf("%w: created", ErrClaimMissing)
	}
	return claims.Created, nil
}

// ExpirationFromToken returns the exp claim.
func (c *Codec) ExpirationFromToken(token string) (time.Time, error) {
	claims, err := c.Parse(token)
	if err != nil {
		c.logFailure("expiration", err)
		return time.Time{}, err
	}
	if !claims.HasExpiry() {
		return time.Time{}, fmt.Errorf("%w: exp", ErrClaimMissing)
	}
	return claims.ExpiresAt, nil
}

// IsTokenExpired reports true unless the token parses and its exp is strictly in the future.
func (c *Codec) IsTokenExpired(token string) bool {
	exp, err := c.ExpirationFromToken(token)
	if err != nil {
		return true
	}
	return !exp.After(c.now())
}

// CanTokenBeRefreshed reports whether token is eligible for refresh: it must carry a created
// claim not earlier than lastPasswordReset (when set) and must not be expired.
func (c *Codec) CanTokenBeRefreshed(token string, lastPasswordReset time.Time) bool {
	err := c.CheckRefreshable(token, lastPasswordReset)
	if err != nil {
		c.logFailure("can_refresh", err)
	}
	return err == nil
}

// CheckRefreshable is CanTokenBeRefreshed with the reason for a refusal.
func (c *Codec) CheckRefreshable(token string, lastPasswordReset time.Time) error {
	claims, err := c.Parse(token)
	if err != nil {
		return err
	}
	if !claims.HasCreated() {
		return fmt.Errorf("%w: created", ErrClaimMissing)
	}
	if issuedBefore(claims.Created, lastPasswordReset) {
		return ErrIssuedBeforeReset
	}
	return c.checkExpiry(claims)
}

// ValidateToken reports whether token is valid for id: subject and created are present,
// the subject equals id's username, the token was not created before id's last password
// reset and it has not expired.
func (c *Codec) ValidateToken(token string, id Identity) bool {
	err := c.CheckToken(token, id)
	if err != nil {
		c.logFailure("validate", err)
	}
	return err == nil
}

// CheckToken is ValidateToken with the reason for a rejection.
//
// Its time rules currently match CheckRefreshable but are evaluated independently, so the
// two predicates can diverge without affecting each other's callers.
func (c *Codec) CheckToken(token string, id Identity) error {
	claims, err := c.Parse(token)
	if err != nil {
		return err
	}
	if !claims.HasSubject() {
		return fmt.Errorf("%w: sub", ErrClaimMissing)
	}
	if !claims.HasCreated() {
		return fmt.Errorf("%w: created", ErrClaimMissing)
	}
	if id == nil || claims.Subject != id.Username() {
		return ErrSubjectMismatch
	}
	if issuedBefore(claims.Created, id.LastPasswordReset()) {
		return ErrIssuedBeforeReset
	}
	return c.checkExpiry(claims)
}

func (c *Codec) checkExpiry(claims *Claims) error {
	if !claims.HasExpiry() {
		return fmt.Errorf("%w: exp", ErrClaimMissing)
	}
	if !claims.ExpiresAt.After(c.now()) {
		return ErrExpired
	}
	return nil
}

func (c *Codec) issue(subject string, ttl time.Duration) (string, error) {
	now := c.now()
	return c.sign(gjwt.MapClaims{
		ClaimSubject:    subject,
		ClaimCreated:    now.UnixMilli(),
		ClaimExpiration: gjwt.NewNumericDate(now.Add(ttl)),
	})
}

func (c *Codec) sign(claims gjwt.MapClaims) (string, error) {
	signed, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) logFailure(op string, err error) {
	c.logger.Debug("token check failed",
		zap.String("op", op),
		zap.Stringer("kind", KindOf(err)),
		zap.Error(err),
	)
}

// issuedBefore compares at the millisecond precision of the created claim.
func issuedBefore(created, lastReset time.Time) bool {
	return !lastReset.IsZero() && created.UnixMilli() < lastReset.UnixMilli()
}
