package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
)

var (
	// ErrDuplicateToken is returned when saving a record whose token exists.
	ErrDuplicateToken = errors.New("resolution token already exists")

	// ErrRequestInUse is returned when a request ID is bound to another
	// resolution whose flow has not completed yet.
	ErrRequestInUse = errors.New("request id already in use")

	// ErrNotAwaitingCompletion is returned when a completion arrives for a
	// resolution that is not in the dispatched state.
	ErrNotAwaitingCompletion = errors.New("resolution is not awaiting completion")
)

func requestKey(requestID int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(int64(requestID)))
	return key
}

func getRecord(bucket *bbolt.Bucket, token string) (*ResolutionRecord, error) {
	data := bucket.Get([]byte(token))
	if data == nil {
		return nil, connresult.ErrResolutionNotFound
	}
	record := &ResolutionRecord{}
	if err := record.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode resolution %s: %w", token, err)
	}
	return record, nil
}

func putRecord(bucket *bbolt.Bucket, record *ResolutionRecord) error {
	data, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	return bucket.Put([]byte(record.Token), data)
}

// SaveResolution stores a newly issued resolution.
func (b *BoltDB) SaveResolution(record *ResolutionRecord) error {
	if record.Token == "" {
		return fmt.Errorf("resolution token is required")
	}
	if record.State == "" {
		record.State = StatePending
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		if bucket.Get([]byte(record.Token)) != nil {
			return ErrDuplicateToken
		}
		return putRecord(bucket, record)
	})
}

// GetResolution retrieves a resolution by token.
func (b *BoltDB) GetResolution(token string) (*ResolutionRecord, error) {
	var record *ResolutionRecord

	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		record, err = getRecord(tx.Bucket([]byte(ResolutionsBucket)), token)
		return err
	})

	return record, err
}

// GetResolutionByRequest retrieves the resolution dispatched with requestID.
func (b *BoltDB) GetResolutionByRequest(requestID int) (*ResolutionRecord, error) {
	var record *ResolutionRecord

	err := b.db.View(func(tx *bbolt.Tx) error {
		token := tx.Bucket([]byte(RequestsBucket)).Get(requestKey(requestID))
		if token == nil {
			return connresult.ErrResolutionNotFound
		}
		var err error
		record, err = getRecord(tx.Bucket([]byte(ResolutionsBucket)), string(token))
		return err
	})

	return record, err
}

// ListResolutions returns all resolutions in token order. Tokens are ULIDs,
// so this is issue order.
func (b *BoltDB) ListResolutions() ([]*ResolutionRecord, error) {
	var records []*ResolutionRecord

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		return bucket.ForEach(func(_, v []byte) error {
			record := &ResolutionRecord{}
			if err := record.UnmarshalBinary(v); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})

	return records, err
}

// ClaimResolution moves a pending resolution to dispatching and binds
// requestID to it, all in one transaction. Exactly one concurrent caller can
// win a claim; the others see ErrResolutionConsumed.
func (b *BoltDB) ClaimResolution(token string, requestID int, now time.Time) (*ResolutionRecord, error) {
	var record *ResolutionRecord

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		requests := tx.Bucket([]byte(RequestsBucket))

		var err error
		record, err = getRecord(bucket, token)
		if err != nil {
			return err
		}

		switch {
		case record.State == StateCanceled:
			return connresult.ErrResolutionCanceled
		case record.State != StatePending:
			return connresult.ErrResolutionConsumed
		case record.Expired(now):
			return connresult.ErrResolutionExpired
		}

		// A request ID stays bound to its last resolution so completions can
		// be looked up; it is only in use while that flow is outstanding.
		if bound := requests.Get(requestKey(requestID)); bound != nil && string(bound) != token {
			previous, err := getRecord(bucket, string(bound))
			switch {
			case errors.Is(err, connresult.ErrResolutionNotFound):
			case err != nil:
				return err
			case previous.State == StateDispatching, previous.State == StateDispatched:
				return ErrRequestInUse
			}
		}

		record.State = StateDispatching
		record.RequestID = requestID
		record.Attempts++
		record.LastError = ""
		if err := requests.Put(requestKey(requestID), []byte(token)); err != nil {
			return err
		}
		return putRecord(bucket, record)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// ReleaseResolution returns a claimed resolution to pending after the host
// refused the launch, recording the cause.
func (b *BoltDB) ReleaseResolution(token string, cause error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		record, err := getRecord(bucket, token)
		if err != nil {
			return err
		}
		if record.State != StateDispatching {
			return fmt.Errorf("resolution %s is %s, not dispatching", token, record.State)
		}

		if err := tx.Bucket([]byte(RequestsBucket)).Delete(requestKey(record.RequestID)); err != nil {
			return err
		}

		record.State = StatePending
		record.RequestID = 0
		if cause != nil {
			record.LastError = cause.Error()
		}
		return putRecord(bucket, record)
	})
}

// MarkDispatched records that the host accepted the flow.
func (b *BoltDB) MarkDispatched(token string, now time.Time) (*ResolutionRecord, error) {
	var record *ResolutionRecord

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		var err error
		record, err = getRecord(bucket, token)
		if err != nil {
			return err
		}
		if record.State != StateDispatching {
			return fmt.Errorf("resolution %s is %s, not dispatching", token, record.State)
		}

		record.State = StateDispatched
		record.Dispatched = &now
		return putRecord(bucket, record)
	})

	return record, err
}

// CompleteRequest stores the result code the host reported for requestID.
func (b *BoltDB) CompleteRequest(requestID, resultCode int, now time.Time) (*ResolutionRecord, error) {
	var record *ResolutionRecord

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		token := tx.Bucket([]byte(RequestsBucket)).Get(requestKey(requestID))
		if token == nil {
			return connresult.ErrResolutionNotFound
		}

		var err error
		record, err = getRecord(bucket, string(token))
		if err != nil {
			return err
		}
		if record.State != StateDispatched {
			return ErrNotAwaitingCompletion
		}

		record.State = StateCompleted
		record.ResultCode = &resultCode
		record.Finished = &now
		return putRecord(bucket, record)
	})

	return record, err
}

// CancelResolution invalidates a pending resolution. Canceling an already
// canceled resolution is a no-op; a dispatched one cannot be canceled.
func (b *BoltDB) CancelResolution(token string, now time.Time) (*ResolutionRecord, error) {
	var record *ResolutionRecord

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		var err error
		record, err = getRecord(bucket, token)
		if err != nil {
			return err
		}

		switch record.State {
		case StateCanceled:
			return nil
		case StatePending:
		default:
			return connresult.ErrResolutionConsumed
		}

		record.State = StateCanceled
		record.Finished = &now
		return putRecord(bucket, record)
	})

	return record, err
}

// PurgeResolutions deletes records that finished, or expired undispatched,
// more than retain before now. Dispatched records without a completion and
// claims that were never marked dispatched are purged once their expiry is
// past the retention window.
func (b *BoltDB) PurgeResolutions(now time.Time, retain time.Duration) (int, error) {
	cutoff := now.Add(-retain)
	removed := 0

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ResolutionsBucket))
		requests := tx.Bucket([]byte(RequestsBucket))

		type victim struct {
			key       []byte
			requestID int
		}
		var victims []victim

		err := bucket.ForEach(func(k, v []byte) error {
			record := &ResolutionRecord{}
			if err := record.UnmarshalBinary(v); err != nil {
				b.logger.Errorf("Failed to unmarshal resolution during purge: %v", err)
				return nil
			}

			var reference time.Time
			switch record.State {
			case StateCompleted, StateCanceled:
				if record.Finished != nil {
					reference = *record.Finished
				}
			case StatePending, StateDispatching, StateDispatched:
				reference = record.ExpiresAt
			default:
				return nil
			}

			if !reference.IsZero() && reference.Before(cutoff) {
				victims = append(victims, victim{
					key:       append([]byte(nil), k...),
					requestID: record.RequestID,
				})
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, v := range victims {
			if err := bucket.Delete(v.key); err != nil {
				return err
			}
			// The request ID may have been rebound to a newer resolution.
			if v.requestID != 0 && string(requests.Get(requestKey(v.requestID))) == string(v.key) {
				if err := requests.Delete(requestKey(v.requestID)); err != nil {
					return err
				}
			}
			removed++
		}
		return nil
	})

	return removed, err
}
