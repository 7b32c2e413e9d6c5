// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"context"
	"encoding/hex"
	"path"

	"github.com/go-json-experiment/json"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrSpecMismatch is returned when a stored cell was written by a tag with a
// different identity than the one reading it.
var ErrSpecMismatch = errors.New("state cell spec mismatch")

// BlobBackend keeps state as objects in a bucket, one object per cell.
//
// Cells are stored with the spec of the tag that wrote them, so that reusing
// an id with a different layout is detected instead of misdecoded.
type BlobBackend struct {
	bucket *blob.Bucket
	prefix string
}

// NewBlobBackend returns a backend storing cells under the prefix in the
// bucket. The caller owns the bucket.
func NewBlobBackend(bucket *blob.Bucket, prefix string) *BlobBackend {
	return &BlobBackend{bucket: bucket, prefix: prefix}
}

var _ Backend = (*BlobBackend)(nil)

// Persistent is true: cells outlive the process.
func (b *BlobBackend) Persistent() bool { return true }

type blobCell struct {
	Spec   Spec     `json:"spec"`
	Values [][]byte `json:"values"`
}

func (b *BlobBackend) objectKey(addr Address) string {
	ns := hex.EncodeToString([]byte(addr.Namespace))
	if ns == "" {
		ns = "_"
	}
	return path.Join(b.prefix, hex.EncodeToString([]byte(addr.Key)), ns, hex.EncodeToString([]byte(addr.Tag.ID)))
}

func (b *BlobBackend) Get(ctx context.Context, addr Address) ([][]byte, error) {
	key := b.objectKey(addr)
	data, err := b.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading state object %q", key)
	}
	var cell blobCell
	if err := json.Unmarshal(data, &cell); err != nil {
		return nil, errors.Wrapf(err, "decoding state object %q", key)
	}
	if cell.Spec != addr.Tag {
		return nil, errors.Wrapf(ErrSpecMismatch, "object %q holds %v, read as %v", key, cell.Spec, addr.Tag)
	}
	return cell.Values, nil
}

func (b *BlobBackend) Put(ctx context.Context, addr Address, vals [][]byte) error {
	key := b.objectKey(addr)
	if len(vals) == 0 {
		if err := b.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return errors.Wrapf(err, "deleting state object %q", key)
		}
		return nil
	}
	data, err := json.Marshal(blobCell{Spec: addr.Tag, Values: vals}, json.Deterministic(true))
	if err != nil {
		return errors.Wrapf(err, "encoding state object %q", key)
	}
	if err := b.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return errors.Wrapf(err, "writing state object %q", key)
	}
	return nil
}

// Append rewrites the cell with the value added.
func (b *BlobBackend) Append(ctx context.Context, addr Address, val []byte) error {
	vals, err := b.Get(ctx, addr)
	if err != nil {
		return err
	}
	return b.Put(ctx, addr, append(vals, val))
}
