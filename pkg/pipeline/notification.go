package pipeline

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/vellum-io/vellum/pkg/kind"
)

// Notification is the S3-shaped event envelope carried on the notification
// topic. Both real bucket notifications and the in-process bridge produce
// this shape.
type Notification struct {
	Records []Record `json:"Records"`
}

// Record is one object event inside a notification.
type Record struct {
	S3 RecordS3 `json:"s3"`
}

// RecordS3 carries the bucket and object of a record.
type RecordS3 struct {
	Bucket RecordBucket `json:"bucket"`
	Object RecordObject `json:"object"`
}

// RecordBucket names the bucket.
type RecordBucket struct {
	Name string `json:"name"`
}

// RecordObject names the object key. Keys in real bucket notifications are
// URL-encoded.
type RecordObject struct {
	Key string `json:"key"`
}

// ObjectRef is a decoded (bucket, key) pair.
type ObjectRef struct {
	Bucket string
	Key    string
}

// ParseNotification decodes an event payload into object references. Keys
// are URL-unescaped the way bucket notifications encode them; keys that do
// not unescape cleanly are kept verbatim.
func ParseNotification(payload []byte) ([]ObjectRef, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w: %v", kind.ErrParse, err)
	}
	if len(n.Records) == 0 {
		return nil, nil
	}

	refs := make([]ObjectRef, 0, len(n.Records))
	for _, r := range n.Records {
		key := r.S3.Object.Key
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if r.S3.Bucket.Name == "" || key == "" {
			continue
		}
		refs = append(refs, ObjectRef{Bucket: r.S3.Bucket.Name, Key: key})
	}
	return refs, nil
}

// NewNotification builds a single-record envelope for an object write.
func NewNotification(bucket, key string) Notification {
	return Notification{
		Records: []Record{{
			S3: RecordS3{
				Bucket: RecordBucket{Name: bucket},
				Object: RecordObject{Key: key},
			},
		}},
	}
}

// Encode marshals the notification for publishing.
func (n Notification) Encode() ([]byte, error) {
	return json.Marshal(n)
}
