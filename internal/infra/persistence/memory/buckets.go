package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot bucket names in persistence order. Durable
// backends store one JSON payload per bucket.
var Buckets = []string{
	"labware_types",
	"labware",
	"samples",
	"tissues",
	"bio_states",
	"operation_types",
	"operations",
	"works",
	"sequences",
}

func (s *Snapshot) bucketTargets() map[string]any {
	return map[string]any{
		"labware_types":   &s.LabwareTypes,
		"labware":         &s.Labware,
		"samples":         &s.Samples,
		"tissues":         &s.Tissues,
		"bio_states":      &s.BioStates,
		"operation_types": &s.OperationTypes,
		"operations":      &s.Operations,
		"works":           &s.Works,
		"sequences":       &s.Sequences,
	}
}

// EncodeBuckets renders every bucket of the snapshot as JSON.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	targets := snapshot.bucketTargets()
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		data, err := json.Marshal(targets[bucket])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket decodes one stored payload into the snapshot. Unknown buckets
// and empty payloads are ignored so older databases keep loading.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := snapshot.bucketTargets()[bucket]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
