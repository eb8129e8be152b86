package storage

import (
	"errors"
	"testing"

	"palisade/internal/model"
)

func TestRunCodecRoundTrip(t *testing.T) {
	run := model.RunRecord{
		VersionedRecord: Stamp(),
		RunID:           "run-1",
		Mode:            "pbt",
		TimestepsMain:   12345,
	}
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("EncodeRun: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("DecodeRun: %v", err)
	}
	if decoded.RunID != run.RunID || decoded.TimestepsMain != run.TimestepsMain {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestDecodeRejectsFutureVersions(t *testing.T) {
	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: CurrentSchemaVersion + 1,
			CodecVersion:  CurrentCodecVersion,
		},
		RunID: "run-1",
	}
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("EncodeRun: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}

	outcome := model.JobOutcome{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: CurrentSchemaVersion,
			CodecVersion:  CurrentCodecVersion + 1,
		},
		JobID: "job-1",
	}
	payload, err := EncodeJobOutcome(outcome)
	if err != nil {
		t.Fatalf("EncodeJobOutcome: %v", err)
	}
	if _, err := DecodeJobOutcome(payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestDecodeCheckpointRejectsGarbage(t *testing.T) {
	if _, err := DecodeCheckpoint([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewStoreFactory(t *testing.T) {
	for _, kind := range []string{"", "memory"} {
		store, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("NewStore(%q): %v", kind, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("NewStore(%q) = %T", kind, store)
		}
	}
	if _, err := NewStore("etcd", ""); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}
