package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	assessmentPrefix = "assessment."
	rationalePrefix  = "rationale."
)

// KV is a Store backed by a NATS JetStream key-value bucket. Assessments
// live under "assessment.<id>" and rationales under "rationale.<id>".
type KV struct {
	bucket jetstream.KeyValue
}

// NewKV creates (or binds to) the named bucket on the given JetStream
// context.
func NewKV(ctx context.Context, js jetstream.JetStream, bucket string) (*KV, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Underwriting assessment records",
	})
	if err != nil {
		return nil, fmt.Errorf("creating KV bucket %q: %w", bucket, err)
	}
	return &KV{bucket: kv}, nil
}

func (s *KV) SaveAssessment(ctx context.Context, a Assessment) error {
	return s.put(ctx, assessmentPrefix+a.ID, a)
}

func (s *KV) SaveRationale(ctx context.Context, r Rationale) error {
	return s.put(ctx, rationalePrefix+r.AssessmentID, r)
}

func (s *KV) Assessment(ctx context.Context, id string) (Assessment, error) {
	var a Assessment
	if err := s.get(ctx, assessmentPrefix+id, &a); err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (s *KV) Rationale(ctx context.Context, assessmentID string) (Rationale, error) {
	var r Rationale
	if err := s.get(ctx, rationalePrefix+assessmentID, &r); err != nil {
		return Rationale{}, err
	}
	return r, nil
}

// History scans the assessment keyspace and filters by user. The bucket
// holds one record per completed run, so a full scan stays cheap at the
// volumes a single underwriting node sees.
func (s *KV) History(ctx context.Context, userID string) ([]Assessment, error) {
	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	var out []Assessment
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, assessmentPrefix) {
			continue
		}
		var a Assessment
		if err := s.get(ctx, key, &a); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // deleted between list and get
			}
			return nil, err
		}
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *KV) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	if _, err := s.bucket.Put(ctx, key, data); err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

func (s *KV) get(ctx context.Context, key string, v any) error {
	entry, err := s.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("reading %q: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value(), v); err != nil {
		return fmt.Errorf("decoding %q: %w", key, err)
	}
	return nil
}
