// Package identity resolves bearer tokens into caller identities and carries
// them through request contexts.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/item-catalog/internal/core/domain"
	"github.com/rl1809/item-catalog/internal/observability"
	"github.com/rl1809/item-catalog/internal/port"
)

const bearerPrefix = "Bearer "

type Config struct {
	SecretKey    string
	Algorithm    string
	SubjectClaim string
	CacheTTL     time.Duration
}

// Resolver validates tokens and looks up the caller's profile, cache first.
type Resolver struct {
	parser   *jwt.Parser
	key      any
	claim    string
	ttl      time.Duration
	cache    port.ProfileCache
	profiles port.ProfileClient
	inflight singleflight.Group
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewResolver(cfg Config, cache port.ProfileCache, profiles port.ProfileClient, logger *zap.Logger, metrics *observability.Metrics) (*Resolver, error) {
	key, err := verificationKey(cfg.Algorithm, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	if cfg.SubjectClaim == "" {
		return nil, errors.New("subject claim name required")
	}
	if cfg.CacheTTL <= 0 {
		return nil, errors.New("profile cache ttl must be positive")
	}

	return &Resolver{
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{cfg.Algorithm}), jwt.WithJSONNumber()),
		key:      key,
		claim:    cfg.SubjectClaim,
		ttl:      cfg.CacheTTL,
		cache:    cache,
		profiles: profiles,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func verificationKey(algorithm, secret string) (any, error) {
	if secret == "" {
		return nil, errors.New("signing secret required")
	}

	switch algorithm {
	case "HS256", "HS384", "HS512":
		return []byte(secret), nil
	case "RS256", "RS384", "RS512":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", algorithm)
	}
}

// Resolve turns the raw Authorization header into an Identity. Every error it
// returns wraps domain.ErrAuth.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (domain.Identity, error) {
	token, ok := bearerToken(authorization)
	if !ok {
		return domain.Identity{}, domain.ErrMissingOrMalformed
	}

	claims := jwt.MapClaims{}
	if _, err := r.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.key, nil
	}); err != nil {
		r.logger.Warn("Invalid token", zap.Error(err))
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	subjectID, ok := subject(claims[r.claim])
	if !ok {
		return domain.Identity{}, domain.ErrMalformedClaims
	}

	profile, err := r.profile(ctx, subjectID)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.NewIdentity(subjectID, profile), nil
}

func (r *Resolver) profile(ctx context.Context, subjectID string) (domain.Profile, error) {
	cached, ok, err := r.cache.Get(ctx, subjectID)
	if err != nil {
		r.logger.Warn("Profile cache read failed", zap.String("user_id", subjectID), zap.Error(err))
	} else if ok {
		r.metrics.CacheHit()
		return cached, nil
	}
	r.metrics.CacheMiss()

	// Concurrent misses for one subject share a single remote call. The call
	// must not die with whichever request happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := r.inflight.Do(subjectID, func() (any, error) {
		profile, err := r.profiles.FetchProfile(fetchCtx, subjectID)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Set(fetchCtx, subjectID, profile, r.ttl); err != nil {
			r.logger.Warn("Profile cache write failed", zap.String("user_id", subjectID), zap.Error(err))
		}
		return profile, nil
	})
	if err != nil {
		r.metrics.FetchFailure()
		r.logger.Error("Unable to fetch user info from user service", zap.String("user_id", subjectID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return v.(domain.Profile), nil
}

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// subject normalises a string or numeric claim to its decimal string form.
func subject(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}
