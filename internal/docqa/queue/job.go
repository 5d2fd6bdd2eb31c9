// Package queue delivers ingestion jobs at least once with exponential
// backoff, backed by Redis or an in-process list.
package queue

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kart-io/docqa/pkg/utils/id"
)

// Kind 任务类型。
type Kind string

const (
	// KindIngestFile 对一个已确认上传的文件执行入库。
	KindIngestFile Kind = "ingest_file"
	// KindDeleteObject 删除对象存储中的一个对象。
	KindDeleteObject Kind = "delete_object"
)

// Job 是任务负载的封闭联合，只有本包内的类型可以实现。
type Job interface {
	Kind() Kind
	// LeaseKey 同一时刻最多一个任务持有该键，空字符串表示不需要租约。
	LeaseKey() string
	sealed()
}

// IngestFile 入库任务负载。
type IngestFile struct {
	FileID string `msgpack:"file_id"`
}

func (IngestFile) Kind() Kind         { return KindIngestFile }
func (j IngestFile) LeaseKey() string { return "file:" + j.FileID }
func (IngestFile) sealed()            {}

// DeleteObject 对象删除任务负载。
type DeleteObject struct {
	StorageKey string `msgpack:"storage_key"`
}

func (DeleteObject) Kind() Kind       { return KindDeleteObject }
func (DeleteObject) LeaseKey() string { return "" }
func (DeleteObject) sealed()          {}

// Envelope 队列中保存的任务信封。
type Envelope struct {
	ID         string             `msgpack:"id"`
	Kind       Kind               `msgpack:"kind"`
	Attempt    int                `msgpack:"attempt"`
	EnqueuedAt time.Time          `msgpack:"enqueued_at"`
	LastError  string             `msgpack:"last_error,omitempty"`
	Payload    msgpack.RawMessage `msgpack:"payload"`
}

// Delivery 一次任务投递。Attempt 从 1 开始。
type Delivery struct {
	ID      string
	Job     Job
	Attempt int

	envelope Envelope
	raw      []byte
}

func newEnvelope(job Job) (Envelope, error) {
	payload, err := msgpack.Marshal(job)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", job.Kind(), err)
	}
	return Envelope{
		ID:         id.NewULID(),
		Kind:       job.Kind(),
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
		Payload:    payload,
	}, nil
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

func decodeDelivery(raw []byte) (*Delivery, error) {
	var env Envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	job, err := decodeJob(env.Kind, env.Payload)
	if err != nil {
		return nil, err
	}
	return &Delivery{ID: env.ID, Job: job, Attempt: env.Attempt, envelope: env, raw: raw}, nil
}

func decodeJob(kind Kind, payload []byte) (Job, error) {
	switch kind {
	case KindIngestFile:
		var j IngestFile
		if err := msgpack.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return j, nil
	case KindDeleteObject:
		var j DeleteObject
		if err := msgpack.Unmarshal(payload, &j); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return j, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// next 返回下一次投递的信封。bump 为 false 时不计入尝试次数。
func (d *Delivery) next(bump bool, lastErr string) ([]byte, error) {
	env := d.envelope
	if bump {
		env.Attempt++
	}
	env.LastError = lastErr
	return encodeEnvelope(env)
}
