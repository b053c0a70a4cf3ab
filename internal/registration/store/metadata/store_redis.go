package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

var writeDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "onboarding_metadata_write_duration_ms",
	Help:    "Latency of metadata writes to Redis in milliseconds",
	Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
})

const defaultKeyPrefix = "onboarding:"

// RedisStore keeps one hash per metadata record plus a set per identity
// listing its record ids.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) recordKey(metadataID id.MetadataID) string {
	return s.prefix + "metadata:" + metadataID.String()
}

func (s *RedisStore) identityKey(identityID id.IdentityID) string {
	return s.prefix + "metadata:identity:" + identityID.String()
}

// Insert writes the record hash and its identity index entry in one
// MULTI/EXEC block.
func (s *RedisStore) Insert(ctx context.Context, identityID id.IdentityID, fields models.MetadataFields) (id.MetadataID, error) {
	start := time.Now()
	defer func() {
		writeDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	metadataID := id.NewMetadataID()
	createdAt := requestcontext.Now(ctx).UTC()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordKey(metadataID), map[string]any{
		"identity_id":       identityID.String(),
		"email":             fields.Email,
		"user_type":         string(fields.UserType),
		"terms_accepted_at": formatTime(fields.TermsAcceptedAt),
		"signup_ip":         fields.SignupIP,
		"user_agent":        fields.UserAgent,
		"browser":           fields.Browser,
		"os":                fields.OS,
		"platform":          fields.Platform,
		"mobile":            strconv.FormatBool(fields.Mobile),
		"created_at":        formatTime(createdAt),
	})
	pipe.SAdd(ctx, s.identityKey(identityID), metadataID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return id.MetadataID{}, fmt.Errorf("insert metadata: %w", err)
	}
	return metadataID, nil
}

// Delete removes a record and its index entry. A missing record is
// sentinel.ErrNotFound.
func (s *RedisStore) Delete(ctx context.Context, metadataID id.MetadataID) error {
	key := s.recordKey(metadataID)
	owner, err := s.client.HGet(ctx, key, "identity_id").Result()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, key)
	if identityID, parseErr := id.ParseIdentityID(owner); parseErr == nil {
		pipe.SRem(ctx, s.identityKey(identityID), metadataID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	if del.Val() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, metadataID id.MetadataID) (Record, error) {
	values, err := s.client.HGetAll(ctx, s.recordKey(metadataID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("find metadata: %w", err)
	}
	if len(values) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return decodeRecord(metadataID, values)
}

func (s *RedisStore) ExistsForIdentity(ctx context.Context, identityID id.IdentityID) (bool, error) {
	n, err := s.client.SCard(ctx, s.identityKey(identityID)).Result()
	if err != nil {
		return false, fmt.Errorf("check metadata exists: %w", err)
	}
	return n > 0, nil
}

func decodeRecord(metadataID id.MetadataID, values map[string]string) (Record, error) {
	identityID, err := id.ParseIdentityID(values["identity_id"])
	if err != nil {
		return Record{}, fmt.Errorf("decode metadata identity: %w", err)
	}
	mobile, _ := strconv.ParseBool(values["mobile"])
	return Record{
		ID:         metadataID,
		IdentityID: identityID,
		Fields: models.MetadataFields{
			Email:           values["email"],
			UserType:        models.UserType(values["user_type"]),
			TermsAcceptedAt: parseTime(values["terms_accepted_at"]),
			SignupIP:        values["signup_ip"],
			UserAgent:       values["user_agent"],
			Browser:         values["browser"],
			OS:              values["os"],
			Platform:        values["platform"],
			Mobile:          mobile,
		},
		CreatedAt: parseTime(values["created_at"]),
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
