package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

const (
	REDIDX_BUILDRECORDS = "buildtools:buildrecord:index" //list of record ids, newest first
)

func buildRecordKey(id uuid.UUID) string {
	return fmt.Sprintf("buildtools:buildrecord:%s", id)
}

/**
BuildRecordStore keeps build records in redis. maxRecords bounds the index; records that fall
off the end of the index are deleted
*/
type BuildRecordStore struct {
	client     redis.Cmdable
	maxRecords int64
}

func NewBuildRecordStore(client redis.Cmdable, maxRecords int64) *BuildRecordStore {
	if maxRecords <= 0 {
		maxRecords = 500
	}
	return &BuildRecordStore{client: client, maxRecords: maxRecords}
}

func (s *BuildRecordStore) Store(record BuildRecord) error {
	content, marshalErr := json.Marshal(record)
	if marshalErr != nil {
		klog.Errorf("Could not marshal data for build record %s: %s", record.Id, marshalErr)
		return marshalErr
	}

	_, saveErr := s.client.Set(buildRecordKey(record.Id), string(content), -1).Result()
	if saveErr != nil {
		klog.Errorf("Could not save data for build record %s: %s", record.Id, saveErr)
		return saveErr
	}

	//an updated record moves to the front of the index, it must not appear twice
	_, remErr := s.client.LRem(REDIDX_BUILDRECORDS, 0, record.Id.String()).Result()
	if remErr != nil {
		klog.Errorf("Could not update index for build record %s: %s", record.Id, remErr)
		return remErr
	}
	_, pushErr := s.client.LPush(REDIDX_BUILDRECORDS, record.Id.String()).Result()
	if pushErr != nil {
		klog.Errorf("Could not index build record %s: %s", record.Id, pushErr)
		return pushErr
	}
	return s.trim()
}

/**
drop everything past maxRecords from the index and delete the associated records
*/
func (s *BuildRecordStore) trim() error {
	expired, rangeErr := s.client.LRange(REDIDX_BUILDRECORDS, s.maxRecords, -1).Result()
	if rangeErr != nil {
		return rangeErr
	}
	if len(expired) == 0 {
		return nil
	}

	keys := make([]string, 0, len(expired))
	for _, idString := range expired {
		id, parseErr := uuid.Parse(idString)
		if parseErr != nil {
			klog.Warningf("Bad id '%s' in build record index: %s", idString, parseErr)
			continue
		}
		keys = append(keys, buildRecordKey(id))
	}
	if len(keys) > 0 {
		if _, delErr := s.client.Del(keys...).Result(); delErr != nil {
			klog.Errorf("Could not delete %d expired build records: %s", len(keys), delErr)
			return delErr
		}
	}
	_, trimErr := s.client.LTrim(REDIDX_BUILDRECORDS, 0, s.maxRecords-1).Result()
	return trimErr
}

/**
get a single record. returns nil and no error if the record does not exist
*/
func (s *BuildRecordStore) Get(id uuid.UUID) (*BuildRecord, error) {
	content, getErr := s.client.Get(buildRecordKey(id)).Result()
	if getErr == redis.Nil {
		return nil, nil
	}
	if getErr != nil {
		klog.Errorf("Could not retrieve build record %s: %s", id, getErr)
		return nil, getErr
	}

	var record BuildRecord
	marshalErr := json.Unmarshal([]byte(content), &record)
	if marshalErr != nil {
		klog.Errorf("Could not understand data for build record %s: %s. Offending data was: %s", id, marshalErr, content)
		return nil, marshalErr
	}
	return &record, nil
}

/**
list up to `limit` records, newest first. records that have gone missing from the store are skipped
*/
func (s *BuildRecordStore) List(limit int64) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = s.maxRecords
	}
	ids, rangeErr := s.client.LRange(REDIDX_BUILDRECORDS, 0, limit-1).Result()
	if rangeErr != nil {
		klog.Errorf("Could not range %s: %s", REDIDX_BUILDRECORDS, rangeErr)
		return nil, rangeErr
	}

	rtn := make([]BuildRecord, 0, len(ids))
	for _, idString := range ids {
		id, parseErr := uuid.Parse(idString)
		if parseErr != nil {
			klog.Warningf("Bad id '%s' in build record index: %s", idString, parseErr)
			continue
		}
		record, getErr := s.Get(id)
		if getErr != nil {
			return nil, getErr
		}
		if record == nil {
			klog.Warningf("Build record %s is indexed but missing", id)
			continue
		}
		rtn = append(rtn, *record)
	}
	return rtn, nil
}

func (s *BuildRecordStore) remove(idString string) error {
	if id, parseErr := uuid.Parse(idString); parseErr == nil {
		if _, delErr := s.client.Del(buildRecordKey(id)).Result(); delErr != nil {
			return delErr
		}
	}
	_, remErr := s.client.LRem(REDIDX_BUILDRECORDS, 0, idString).Result()
	return remErr
}

/**
delete every record from before cutoff, along with index entries that don't point to a valid record.
the index is newest first, so it is walked from the tail one page at a time and the walk stops at the
first record that is recent enough.
returns how many records were removed, or would have been in a dry run
*/
func (s *BuildRecordStore) Reap(cutoff time.Time, pageSize int64, dryRun bool) (int, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	removed := 0
	var skipped int64 = 0 //entries at the tail that a dry run has already looked at

	for {
		ids, rangeErr := s.client.LRange(REDIDX_BUILDRECORDS, -(skipped + pageSize), -(skipped + 1)).Result()
		if rangeErr != nil {
			klog.Errorf("Could not range %s: %s", REDIDX_BUILDRECORDS, rangeErr)
			return removed, rangeErr
		}

		for i := len(ids) - 1; i >= 0; i-- {
			idString := ids[i]
			id, parseErr := uuid.Parse(idString)
			if parseErr == nil {
				record, getErr := s.Get(id)
				if getErr != nil {
					return removed, getErr
				}
				if record != nil && !record.Time.Before(cutoff) {
					return removed, nil
				}
				if record != nil {
					klog.Infof("Removing build record %s for %s from %s", id, record.JobName, record.Time.Format(time.RFC3339))
				}
			} else {
				klog.Warningf("Removing bad id '%s' from build record index", idString)
			}

			removed++
			if dryRun {
				skipped++
				continue
			}
			if remErr := s.remove(idString); remErr != nil {
				klog.Errorf("Could not remove build record %s: %s", idString, remErr)
				return removed, remErr
			}
		}

		if int64(len(ids)) < pageSize {
			return removed, nil
		}
	}
}
