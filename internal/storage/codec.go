package storage

import (
	"encoding/json"
	"errors"

	"palisade/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeCheckpoint(c model.CheckpointRecord) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeCheckpoint(data []byte) (model.CheckpointRecord, error) {
	var checkpoint model.CheckpointRecord
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return model.CheckpointRecord{}, err
	}
	if err := checkVersion(checkpoint.VersionedRecord); err != nil {
		return model.CheckpointRecord{}, err
	}
	return checkpoint, nil
}

func EncodeJobOutcome(o model.JobOutcome) ([]byte, error) {
	return json.Marshal(o)
}

func DecodeJobOutcome(data []byte) (model.JobOutcome, error) {
	var outcome model.JobOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return model.JobOutcome{}, err
	}
	if err := checkVersion(outcome.VersionedRecord); err != nil {
		return model.JobOutcome{}, err
	}
	return outcome, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion > CurrentSchemaVersion || v.CodecVersion > CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

// Stamp fills the current schema and codec versions.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}
