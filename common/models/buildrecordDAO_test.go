package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T, maxRecords int64) (*miniredis.Miniredis, *redis.Client, *BuildRecordStore) {
	s, err := miniredis.Run()
	if err != nil {
		panic(err)
	}

	testClient := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	return s, testClient, NewBuildRecordStore(testClient, maxRecords)
}

func TestBuildRecordStoreRoundTrip(t *testing.T) {
	s, _, store := newTestStore(t, 10)
	defer s.Close()

	record := NewBuildRecord(validJobConfig(), MODE_LOCAL)
	record.SetResult(ParseBuildStderr("BUILD_TOOLS: builds_succeeded zlib/1.2.11\n", 0))
	record.CacheJobId = "12345"

	storeErr := store.Store(record)
	if storeErr != nil {
		t.Fatal("Store failed unexpectedly: ", storeErr)
	}

	result, getErr := store.Get(record.Id)
	if getErr != nil {
		t.Fatal("Get failed unexpectedly: ", getErr)
	}
	if result == nil {
		t.Fatal("Get returned nothing for a stored record")
	}
	if result.JobName != record.JobName || !result.Success || result.CacheJobId != "12345" {
		t.Errorf("Got unexpected record back: %s", spew.Sdump(result))
	}
	if len(result.Modules) != 1 || result.Modules[0] != "zlib/1.2.11" {
		t.Errorf("Got unexpected modules %v", result.Modules)
	}
	if !result.Time.Equal(record.Time) {
		t.Errorf("Got time %s, expected %s", result.Time, record.Time)
	}
}

func TestBuildRecordStoreGetMissing(t *testing.T) {
	s, _, store := newTestStore(t, 10)
	defer s.Close()

	result, err := store.Get(uuid.New())
	if err != nil {
		t.Error("Get of a missing record should not error: ", err)
	}
	if result != nil {
		t.Errorf("Expected nil for a missing record, got %s", spew.Sdump(result))
	}
}

func TestBuildRecordStoreListAndTrim(t *testing.T) {
	s, testClient, store := newTestStore(t, 3)
	defer s.Close()

	ids := make([]uuid.UUID, 5)
	for i := 0; i < 5; i++ {
		cfg := validJobConfig()
		cfg.JobName = fmt.Sprintf("job-%d", i)
		record := NewBuildRecord(cfg, MODE_SUBMIT)
		ids[i] = record.Id
		if err := store.Store(record); err != nil {
			t.Fatal("Store failed unexpectedly: ", err)
		}
	}

	records, listErr := store.List(0)
	if listErr != nil {
		t.Fatal("List failed unexpectedly: ", listErr)
	}
	if len(records) != 3 {
		t.Fatalf("Expected index to be trimmed to 3 records, got %d", len(records))
	}
	if records[0].JobName != "job-4" || records[2].JobName != "job-2" {
		t.Errorf("Records not in newest-first order: %s, %s", records[0].JobName, records[2].JobName)
	}

	//trimmed records should have been deleted too
	exists, _ := testClient.Exists(buildRecordKey(ids[0])).Result()
	if exists != 0 {
		t.Error("Expected oldest record to be deleted")
	}

	limited, _ := store.List(1)
	if len(limited) != 1 || limited[0].JobName != "job-4" {
		t.Errorf("Got unexpected limited list %s", spew.Sdump(limited))
	}
}

func TestBuildRecordStoreUpdate(t *testing.T) {
	s, testClient, store := newTestStore(t, 10)
	defer s.Close()

	record := NewBuildRecord(validJobConfig(), MODE_SUBMIT)
	store.Store(record)
	record.SlurmJobId = "999"
	store.Store(record)

	indexLen, _ := testClient.LLen(REDIDX_BUILDRECORDS).Result()
	if indexLen != 1 {
		t.Errorf("Updating a record should not duplicate it in the index, got %d entries", indexLen)
	}
	result, _ := store.Get(record.Id)
	if result == nil || result.SlurmJobId != "999" {
		t.Errorf("Update was not stored: %s", spew.Sdump(result))
	}
}

func TestBuildRecordStoreReap(t *testing.T) {
	s, testClient, store := newTestStore(t, 10)
	defer s.Close()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		cfg := validJobConfig()
		cfg.JobName = fmt.Sprintf("job-%d", i)
		record := NewBuildRecord(cfg, MODE_SUBMIT)
		if i < 3 {
			record.Time = now.Add(-48 * time.Hour)
		}
		if err := store.Store(record); err != nil {
			t.Fatal("Store failed unexpectedly: ", err)
		}
	}
	//a stray entry at the old end of the index
	testClient.RPush(REDIDX_BUILDRECORDS, "not-a-uuid")

	cutoff := now.Add(-24 * time.Hour)
	wouldRemove, dryErr := store.Reap(cutoff, 2, true)
	if dryErr != nil {
		t.Fatal("Dry run reap failed: ", dryErr)
	}
	if wouldRemove != 4 {
		t.Errorf("Dry run should find 4 entries to remove, got %d", wouldRemove)
	}
	if indexLen, _ := testClient.LLen(REDIDX_BUILDRECORDS).Result(); indexLen != 6 {
		t.Errorf("Dry run removed entries, index has %d", indexLen)
	}

	removed, reapErr := store.Reap(cutoff, 2, false)
	if reapErr != nil {
		t.Fatal("Reap failed: ", reapErr)
	}
	if removed != 4 {
		t.Errorf("Expected 4 entries to be removed, got %d", removed)
	}

	records, _ := store.List(0)
	if len(records) != 2 || records[0].JobName != "job-4" || records[1].JobName != "job-3" {
		t.Errorf("Got unexpected records after reap: %s", spew.Sdump(records))
	}
	if keys, _ := testClient.Keys("buildtools:buildrecord:*-*").Result(); len(keys) != 2 {
		t.Errorf("Expected 2 record keys to remain, got %v", keys)
	}
}
