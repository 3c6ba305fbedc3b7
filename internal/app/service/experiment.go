package service

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

const bucketSpace = 10_000

// splitTolerance bounds the accumulated float error accepted when checking
// that traffic splits sum to 1.0.
const splitTolerance = 1e-6

var (
	// ErrNoVariants signals an experiment configured without variants.
	ErrNoVariants = errors.New("experiment has no variants")

	// ErrBadTrafficSplits signals splits that do not match the variants or do
	// not sum to 1.0. Misconfigured splits are rejected, never normalized.
	ErrBadTrafficSplits = errors.New("traffic splits are invalid")
)

// ExperimentConfig describes the variants and optional traffic splits of an
// experiment. When TrafficSplits is nil, traffic divides equally.
type ExperimentConfig struct {
	Variants      []string  `json:"variants"`
	TrafficSplits []float64 `json:"traffic_splits,omitempty"`
}

// Assignment is the deterministic outcome of bucketing an actor.
type Assignment struct {
	Variant    string `json:"variant"`
	ExposureID string `json:"exposure_id"`
	Rationale  string `json:"rationale"`
}

// ExperimentAssigner deterministically maps (actor, experiment) to a variant.
// It holds no state: identical inputs always produce identical output.
type ExperimentAssigner struct{}

// NewExperimentAssigner returns a stateless assigner.
func NewExperimentAssigner() *ExperimentAssigner {
	return &ExperimentAssigner{}
}

// Assign buckets the actor into one of cfg.Variants.
func (a *ExperimentAssigner) Assign(actorID, experiment string, cfg ExperimentConfig) (Assignment, error) {
	if len(cfg.Variants) == 0 {
		return Assignment{}, ErrNoVariants
	}

	splits, err := resolveSplits(cfg)
	if err != nil {
		return Assignment{}, err
	}

	bucket := bucketOf(actorID, experiment)
	position := float64(bucket) / float64(bucketSpace)

	// Walk cumulative boundaries in variant order. The first variant doubles
	// as the fallback, reachable only through floating-point residue at the
	// final boundary.
	variant := cfg.Variants[0]
	cumulative := 0.0
	for i, split := range splits {
		cumulative += split
		if position < cumulative {
			variant = cfg.Variants[i]
			break
		}
	}

	return Assignment{
		Variant:    variant,
		ExposureID: exposureID(actorID, experiment, variant),
		Rationale:  fmt.Sprintf("bucket %d/%d for %q", bucket, bucketSpace, experiment),
	}, nil
}

func resolveSplits(cfg ExperimentConfig) ([]float64, error) {
	if cfg.TrafficSplits == nil {
		equal := make([]float64, len(cfg.Variants))
		for i := range equal {
			equal[i] = 1.0 / float64(len(cfg.Variants))
		}
		return equal, nil
	}

	if len(cfg.TrafficSplits) != len(cfg.Variants) {
		return nil, ErrBadTrafficSplits
	}
	sum := 0.0
	for _, s := range cfg.TrafficSplits {
		if s < 0 {
			return nil, ErrBadTrafficSplits
		}
		sum += s
	}
	if math.Abs(sum-1.0) > splitTolerance {
		return nil, ErrBadTrafficSplits
	}
	return cfg.TrafficSplits, nil
}

func bucketOf(actorID, experiment string) uint64 {
	digest := sha256.Sum256([]byte(actorID + ":" + experiment))
	return binary.BigEndian.Uint64(digest[:8]) % bucketSpace
}

// exposureID derives a stable identifier for audit logging; repeated calls for
// the same assignment dedupe to the same id.
func exposureID(actorID, experiment, variant string) string {
	digest := sha256.Sum256([]byte(actorID + "|" + experiment + "|" + variant))
	return hex.EncodeToString(digest[:8])
}
